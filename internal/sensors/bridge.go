package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doorwatch/doorwatch-core/internal/control"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/mqtt"
)

// ErrInvalidReport is returned for sensor payloads that cannot be applied.
var ErrInvalidReport = errors.New("invalid sensor report")

// Bus is the subset of *mqtt.Client the sensor package uses.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
}

// Applier applies a sensor report. control.Service implements it.
type Applier interface {
	ApplySensorReport(ctx context.Context, doorID string, report control.SensorReport) error
}

// Bridge turns sensor messages into door mutations.
type Bridge struct {
	bus     Bus
	applier Applier
	logger  *logging.Logger
}

// NewBridge creates a sensor bridge. Call Start to subscribe.
func NewBridge(bus Bus, applier Applier, logger *logging.Logger) *Bridge {
	return &Bridge{
		bus:     bus,
		applier: applier,
		logger:  logger.With("component", "sensors"),
	}
}

// Start subscribes to every door's sensor topic. Reports are applied with
// ctx, so cancelling it aborts in-flight mutations.
func (b *Bridge) Start(ctx context.Context) error {
	topic := mqtt.Topics{}.AllSensorStates()
	if err := b.bus.Subscribe(topic, b.bus.QoS(), func(topic string, payload []byte) error {
		return b.HandleMessage(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to sensor states: %w", err)
	}
	b.logger.Info("sensor bridge subscribed", "topic", topic)
	return nil
}

// HandleMessage applies one sensor message.
func (b *Bridge) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	doorID, ok := mqtt.Topics{}.DoorIDFromSensorTopic(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidReport, topic)
	}
	report, err := ParseReport(payload)
	if err != nil {
		return err
	}
	if err := b.applier.ApplySensorReport(ctx, doorID, report); err != nil {
		if facility.IsNotFound(err) {
			b.logger.Warn("sensor report for unknown door", "door_id", doorID)
			return nil
		}
		return fmt.Errorf("applying sensor report for door %s: %w", doorID, err)
	}
	b.logger.Debug("sensor report applied", "door_id", doorID)
	return nil
}

type reportPayload struct {
	Status       *facility.DoorStatus `json:"status"`
	IsOnline     *bool                `json:"isOnline"`
	BatteryLevel *int                 `json:"batteryLevel"`
}

// ParseReport decodes a sensor payload. A report must carry at least one
// field, and status and battery level must be in range.
func ParseReport(payload []byte) (control.SensorReport, error) {
	var p reportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return control.SensorReport{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	if p.Status == nil && p.IsOnline == nil && p.BatteryLevel == nil {
		return control.SensorReport{}, fmt.Errorf("%w: empty report", ErrInvalidReport)
	}
	if p.Status != nil && !p.Status.Valid() {
		return control.SensorReport{}, fmt.Errorf("%w: unknown status %q", ErrInvalidReport, string(*p.Status))
	}
	if p.BatteryLevel != nil && (*p.BatteryLevel < 0 || *p.BatteryLevel > 100) {
		return control.SensorReport{}, fmt.Errorf("%w: battery level %d out of range", ErrInvalidReport, *p.BatteryLevel)
	}

	return control.SensorReport{
		Status:       p.Status,
		IsOnline:     p.IsOnline,
		BatteryLevel: p.BatteryLevel,
	}, nil
}
