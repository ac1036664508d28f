// Package hub fans out state envelopes to every live push-channel connection.
//
// The Hub is the single ordering point for outbound messages: every
// connection receives broadcasts in the order Broadcast was called. A newly
// registered connection first receives the initial bundle (doors, stats,
// recent activity) and then every broadcast that follows it, with nothing
// stale in between.
//
// Inbound messages are decoded with the envelope package. door-control
// commands go to the Source; refresh resends the bundle to the requester
// only. Malformed or unknown messages are logged and dropped without closing
// the connection.
//
// Lifecycle:
//
//	h := hub.New(cfg.WebSocket, logger)
//	h.SetSource(controlService)
//	go h.Run(ctx)           // closes every connection when ctx is cancelled
//	mux.Handle("/ws", h)    // upgrades and registers connections
package hub
