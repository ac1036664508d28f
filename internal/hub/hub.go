package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/config"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
)

// InitialBundleActivities is how many recent activities a new connection receives.
const InitialBundleActivities = 10

var (
	// ErrClosed is returned by Register after the hub has shut down.
	ErrClosed = errors.New("hub closed")

	// ErrNoSource is returned when no Source has been attached.
	ErrNoSource = errors.New("hub has no state source")
)

// Conn is one live push-channel connection.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Send enqueues msg without blocking. It reports false if the message
	// was dropped because the connection is closed or its buffer is full.
	Send(msg []byte) bool
	// IsOpen reports whether the underlying channel can still deliver.
	IsOpen() bool
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Source supplies current state and performs mutations requested over the
// push channel.
type Source interface {
	// InitialBundle returns, in order, the door list, the dashboard stats and
	// the most recent activities.
	InitialBundle(ctx context.Context) ([]envelope.Envelope, error)
	// ControlDoor applies a door-control command and broadcasts its effects.
	ControlDoor(ctx context.Context, doorID string, action facility.DoorAction, actor facility.Actor) error
}

// Hub holds the live connection set.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	// orderMu serialises broadcasts with bundle delivery so that each
	// connection sees one totally ordered stream.
	orderMu sync.Mutex

	mu     sync.RWMutex
	conns  map[Conn]struct{}
	source Source
	closed bool
}

// New creates a hub. Attach a Source with SetSource before serving.
func New(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger.With("component", "hub"),
		conns:  make(map[Conn]struct{}),
	}
}

// SetSource attaches the state source. It may be called once wiring is
// complete, since the source usually broadcasts through this hub.
func (h *Hub) SetSource(src Source) {
	h.mu.Lock()
	h.source = src
	h.mu.Unlock()
}

func (h *Hub) getSource() Source {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.source
}

// Run blocks until ctx is cancelled, then closes and unregisters every
// connection. Register fails with ErrClosed afterwards.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

// Close shuts the hub down immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
		delete(h.conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close() //nolint:errcheck // best effort during shutdown
	}
	if len(conns) > 0 {
		h.logger.Info("hub closed", "connections", len(conns))
	}
}

// Register adds conn to the live set and sends it the initial bundle.
// The bundle is enqueued before any broadcast issued after Register starts.
func (h *Hub) Register(ctx context.Context, conn Conn) error {
	h.orderMu.Lock()
	defer h.orderMu.Unlock()

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := h.sendBundle(ctx, conn); err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()

	h.logger.Debug("connection registered", "conn", conn.ID(), "clients", count)
	return nil
}

// Unregister removes conn and closes it. Unknown or already removed
// connections are ignored.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	_, existed := h.conns[conn]
	delete(h.conns, conn)
	count := len(h.conns)
	h.mu.Unlock()

	if !existed {
		return
	}
	conn.Close() //nolint:errcheck // connection is already going away
	h.logger.Debug("connection unregistered", "conn", conn.ID(), "clients", count)
}

// Broadcast encodes env once and enqueues it on every open connection.
// Connections that are closed or have a full buffer miss this message;
// they recover through refresh or the next broadcast.
func (h *Hub) Broadcast(env envelope.Envelope) {
	data, err := envelope.Encode(env)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "type", env.Type(), "error", err)
		return
	}

	h.orderMu.Lock()
	defer h.orderMu.Unlock()

	for _, c := range h.snapshot() {
		if !c.IsOpen() {
			continue
		}
		if !c.Send(data) {
			h.logger.Warn("broadcast dropped for slow connection", "conn", c.ID(), "type", env.Type())
		}
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot copies the live set so a connection closing mid-broadcast cannot
// disturb iteration.
func (h *Hub) snapshot() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

// sendBundle must be called with orderMu held.
func (h *Hub) sendBundle(ctx context.Context, conn Conn) error {
	src := h.getSource()
	if src == nil {
		return ErrNoSource
	}

	bundle, err := src.InitialBundle(ctx)
	if err != nil {
		return err
	}
	for _, env := range bundle {
		data, err := envelope.Encode(env)
		if err != nil {
			return err
		}
		if !conn.Send(data) {
			h.logger.Warn("initial bundle dropped", "conn", conn.ID(), "type", env.Type())
		}
	}
	return nil
}
