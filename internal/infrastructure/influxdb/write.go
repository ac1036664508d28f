package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/doorwatch/doorwatch-core/internal/facility"
)

// Measurement names.
const (
	MeasurementDoorState    = "door_state"
	MeasurementDoorActivity = "door_activity"
)

// StatusCode maps a door status to the numeric field stored in door_state,
// so dashboards can graph it.
func StatusCode(s facility.DoorStatus) int {
	switch s {
	case facility.StatusOpen:
		return 1
	case facility.StatusLocked:
		return 2
	default:
		return 0
	}
}

// WriteDoorState records a door snapshot.
func (c *Client) WriteDoorState(door facility.Door) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(doorStatePoint(door, c.now()))
}

// WriteActivity records an access-log entry.
func (c *Client) WriteActivity(activity facility.Activity) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(activityPoint(activity, c.now()))
}

func doorStatePoint(door facility.Door, ts time.Time) *write.Point {
	if !door.LastUpdate.IsZero() {
		ts = door.LastUpdate
	}
	fields := map[string]interface{}{
		"status":      string(door.Status),
		"status_code": StatusCode(door.Status),
		"online":      door.IsOnline,
	}
	if door.BatteryLevel != nil {
		fields["battery_level"] = *door.BatteryLevel
	}
	return write.NewPoint(
		MeasurementDoorState,
		map[string]string{
			"door_id":  door.ID,
			"name":     door.Name,
			"location": door.Location,
		},
		fields,
		ts,
	)
}

func activityPoint(a facility.Activity, ts time.Time) *write.Point {
	if !a.Timestamp.IsZero() {
		ts = a.Timestamp
	}
	return write.NewPoint(
		MeasurementDoorActivity,
		map[string]string{
			"door_id": a.DoorID,
			"action":  string(a.Action),
			"method":  string(a.Method),
		},
		map[string]interface{}{
			"user_id":   a.UserID,
			"user_name": a.UserName,
			"door_name": a.DoorName,
			"count":     1,
		},
		ts,
	)
}
