package sensors

import (
	"context"

	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/mqtt"
)

// DefaultMirrorBuffer is the number of envelopes Mirror queues before it
// starts dropping.
const DefaultMirrorBuffer = 256

type mirrored struct {
	topic    string
	payload  []byte
	retained bool
}

// Mirror republishes broadcast envelopes on the MQTT bus. Broadcast never
// blocks; a background Run loop does the publishing.
type Mirror struct {
	bus    Bus
	queue  chan mirrored
	logger *logging.Logger
}

// NewMirror creates a mirror with a queue of size buffer.
func NewMirror(bus Bus, buffer int, logger *logging.Logger) *Mirror {
	if buffer <= 0 {
		buffer = DefaultMirrorBuffer
	}
	return &Mirror{
		bus:    bus,
		queue:  make(chan mirrored, buffer),
		logger: logger.With("component", "mqtt-mirror"),
	}
}

// Broadcast queues env for publishing on doorwatch/events/{type}. The door
// list is retained so late subscribers see current state.
func (m *Mirror) Broadcast(env envelope.Envelope) {
	payload, err := envelope.Encode(env)
	if err != nil {
		m.logger.Error("failed to encode envelope for mirror", "type", env.Type(), "error", err)
		return
	}
	msg := mirrored{
		topic:    mqtt.Topics{}.Event(string(env.Type())),
		payload:  payload,
		retained: env.Type() == envelope.TypeDoorStatusUpdate,
	}
	select {
	case m.queue <- msg:
	default:
		m.logger.Warn("mirror queue full, dropping envelope", "type", env.Type())
	}
}

// Run publishes queued envelopes until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			if err := m.bus.Publish(msg.topic, msg.payload, m.bus.QoS(), msg.retained); err != nil {
				m.logger.Warn("mirror publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}
