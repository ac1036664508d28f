// Package control is the single path through which facility state changes.
//
// Every mutation, whether it comes from a push-channel command, the REST API,
// the simulator or a physical sensor, runs under one lock together with the
// broadcasts it produces. A door transition therefore always reaches viewers
// as door list, then activity, then stats, and two transitions never
// interleave their messages.
//
// Service also implements hub.Source, so the hub can build initial bundles and
// route door-control commands without knowing about the store.
package control
