// Package simulator generates synthetic door transitions for demos and
// development.
//
// On every tick the simulator rolls against its probability. On a hit it
// moves a random online door to a random different status through the
// control service, as the system user. On a miss it only rebroadcasts the
// dashboard stats, so viewers see exactly one stats update per tick either
// way.
package simulator
