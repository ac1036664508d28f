package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Every topic this service touches lives under doorwatch/.
const (
	TopicPrefix       = "doorwatch"
	TopicPrefixSensor = TopicPrefix + "/sensor"
	TopicPrefixEvents = TopicPrefix + "/events"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics builds doorwatch MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SensorState("3") // doorwatch/sensor/3/state
type Topics struct{}

// SensorState is where a door's physical sensor reports its state.
//
// Example: doorwatch/sensor/3/state
func (Topics) SensorState(doorID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixSensor, doorID)
}

// AllSensorStates matches every door's sensor state topic.
//
// Pattern: doorwatch/sensor/+/state
func (Topics) AllSensorStates() string {
	return TopicPrefixSensor + "/+/state"
}

// Event is the mirror topic for one envelope type.
//
// Example: doorwatch/events/door_status_update
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvents, eventType)
}

// AllEvents matches every mirrored envelope.
//
// Pattern: doorwatch/events/+
func (Topics) AllEvents() string {
	return TopicPrefixEvents + "/+"
}

// SystemStatus carries the online/offline status and the LWT.
//
// Example: doorwatch/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DoorIDFromSensorTopic extracts the door ID from a sensor state topic.
// It reports false for any other topic.
func (Topics) DoorIDFromSensorTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixSensor+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/state")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
