// Package sim hosts a simulation behind the link: it accepts one display,
// feeds it frames and HUD state, and turns its key messages back into
// simulation input.
package sim

import "pkt.systems/simlink/schema"

// Simulation is the program being displayed. All methods are called from
// the host's loop goroutine.
type Simulation interface {
	// Resolution is fixed for the lifetime of the link.
	Resolution() schema.Resolution
	// Input delivers one queued key or mouse transition.
	Input(ev InputEvent)
	// SetVariable applies a display-provided setting. Unknown names return
	// false.
	SetVariable(name, value string) bool
	// Tick advances one step. Messages other than frames go through out.
	Tick(out Outbox) error
	// Draw renders the current state into pixels (RGB, Width*Height*3).
	Draw(pixels []byte) schema.DetachedUI
	// Status returns the HUD values, ok is false outside of play.
	Status() (st schema.PlayerStatus, ok bool)
}

// Outbox queues messages for the display.
type Outbox interface {
	Send(msg schema.SimMessage) error
}

// InputEvent is a key transition or, when Mouse is set, the full mouse
// button mask.
type InputEvent struct {
	Key     uint8
	Pressed bool
	Mouse   bool
	Buttons uint8
}
