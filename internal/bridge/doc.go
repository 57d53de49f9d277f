// Package bridge moves engine callbacks (print, messages, MIDI) to the
// handlers registered by the host.
//
// In Direct mode handlers run on the engine thread. In Queued mode the engine
// thread only encodes each callback into a lock-free single-producer,
// single-consumer ring, and the host drains the rings with ReceiveMessages and
// ReceiveMIDI from one controller goroutine.
package bridge
