package hub

import (
	"context"

	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
)

// HandleMessage decodes one inbound frame from origin and acts on it.
// Protocol errors are logged and dropped; the connection stays open.
func (h *Hub) HandleMessage(ctx context.Context, origin Conn, data []byte) {
	env, err := envelope.Decode(data)
	if err != nil {
		h.logger.Warn("dropping malformed message", "conn", origin.ID(), "error", err)
		return
	}

	switch e := env.(type) {
	case envelope.Command:
		h.Route(ctx, e, origin)
	case envelope.Refresh:
		h.refresh(ctx, origin)
	case envelope.DoorStatusUpdate, envelope.UserActivity, envelope.DashboardStats:
		h.logger.Warn("dropping server-only message from client", "conn", origin.ID(), "type", e.Type())
	}
}

// Route dispatches an inbound command. door-control runs a mutation whose
// broadcasts reach every connection; refresh resends the initial bundle to
// origin only.
func (h *Hub) Route(ctx context.Context, cmd envelope.Command, origin Conn) {
	switch cmd.Name {
	case envelope.CommandDoorControl:
		dc, err := cmd.DoorControl()
		if err != nil {
			h.logger.Warn("dropping invalid door-control", "conn", origin.ID(), "error", err)
			return
		}
		src := h.getSource()
		if src == nil {
			h.logger.Error("door-control received before source attached", "conn", origin.ID())
			return
		}
		if err := src.ControlDoor(ctx, dc.DoorID, dc.Action, facility.AdminActor); err != nil {
			h.logger.Warn("door-control failed", "conn", origin.ID(), "door_id", dc.DoorID, "action", dc.Action, "error", err)
		}
	case envelope.CommandRefresh:
		h.refresh(ctx, origin)
	default:
		h.logger.Warn("dropping unknown command", "conn", origin.ID(), "command", cmd.Name)
	}
}

func (h *Hub) refresh(ctx context.Context, origin Conn) {
	h.orderMu.Lock()
	defer h.orderMu.Unlock()

	if err := h.sendBundle(ctx, origin); err != nil {
		h.logger.Warn("refresh failed", "conn", origin.ID(), "error", err)
	}
}
