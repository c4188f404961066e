// Package input turns discrete key actions into timed press and release
// pairs. Terminals report key presses but no releases, so each press is held
// for a fixed duration and then released.
package input

import (
	"time"

	"pkt.systems/simlink/schema"
)

// DefaultHold is used when Options.Hold is zero.
const DefaultHold = 300 * time.Millisecond

// KeySink receives the key transitions the scheduler decides on.
type KeySink interface {
	SendKey(key uint8, pressed bool) error
	SendMouseButtons(mask uint8) error
}

type Options struct {
	Hold time.Duration
	Now  func() time.Time
}

// Scheduler tracks at most one held key. It is owned by one goroutine,
// which must call ReleaseExpired whenever C fires.
type Scheduler struct {
	sink     KeySink
	hold     time.Duration
	now      func() time.Time
	timer    *time.Timer
	held     bool
	key      uint8
	mods     schema.Modifiers
	deadline time.Time
	mouse    uint8
}

func New(sink KeySink, opt Options) *Scheduler {
	if opt.Hold <= 0 {
		opt.Hold = DefaultHold
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &Scheduler{sink: sink, hold: opt.Hold, now: opt.Now, timer: t}
}

// C fires when the held key's deadline may have passed.
func (s *Scheduler) C() <-chan time.Time {
	return s.timer.C
}

// Held returns the held key and its modifiers.
func (s *Scheduler) Held() (key uint8, mods schema.Modifiers, ok bool) {
	return s.key, s.mods, s.held
}

// Deadline returns when the held key will be released.
func (s *Scheduler) Deadline() (time.Time, bool) {
	return s.deadline, s.held
}

// Press releases whatever is held and presses key with mods. Pressing the
// opposite movement key with the same modifiers only cancels the held key.
func (s *Scheduler) Press(key uint8, mods schema.Modifiers) error {
	// An expired hold is released before the new key is considered, so the
	// opposite-key cancel only applies while the hold is live.
	if err := s.ReleaseExpired(); err != nil {
		return err
	}
	newMods := mods
	if s.held {
		if opp, ok := schema.OppositeKey(s.key); ok && opp == key && mods == s.mods {
			return s.releaseHeld()
		}
		if err := s.sink.SendKey(s.key, false); err != nil {
			return err
		}
		for _, mk := range schema.ModifierKeys {
			if s.mods.Has(mk.Mod) && !mods.Has(mk.Mod) {
				if err := s.sink.SendKey(mk.Key, false); err != nil {
					return err
				}
			}
		}
		newMods = mods &^ s.mods
		s.held = false
	}
	for _, mk := range schema.ModifierKeys {
		if newMods.Has(mk.Mod) {
			if err := s.sink.SendKey(mk.Key, true); err != nil {
				return err
			}
		}
	}
	if err := s.sink.SendKey(key, true); err != nil {
		return err
	}
	s.held = true
	s.key = key
	s.mods = mods
	s.deadline = s.now().Add(s.hold)
	s.timer.Reset(s.hold)
	return nil
}

// ReleaseExpired releases the held key once its deadline has passed and
// re-arms the timer otherwise.
func (s *Scheduler) ReleaseExpired() error {
	if !s.held {
		return nil
	}
	if remaining := s.deadline.Sub(s.now()); remaining > 0 {
		s.timer.Reset(remaining)
		return nil
	}
	return s.releaseHeld()
}

// SetMouseButton updates one button bit and sends the whole mask on change.
func (s *Scheduler) SetMouseButton(button uint8, down bool) error {
	mask := s.mouse &^ button
	if down {
		mask |= button
	}
	if mask == s.mouse {
		return nil
	}
	s.mouse = mask
	return s.sink.SendMouseButtons(mask)
}

// ReleaseAll releases the held key and every mouse button.
func (s *Scheduler) ReleaseAll() error {
	if err := s.releaseHeld(); err != nil {
		return err
	}
	if s.mouse != 0 {
		s.mouse = 0
		return s.sink.SendMouseButtons(0)
	}
	return nil
}

// Stop releases the timer without sending anything.
func (s *Scheduler) Stop() {
	s.timer.Stop()
}

func (s *Scheduler) releaseHeld() error {
	if !s.held {
		return nil
	}
	s.held = false
	s.timer.Stop()
	if err := s.sink.SendKey(s.key, false); err != nil {
		return err
	}
	for _, mk := range schema.ModifierKeys {
		if s.mods.Has(mk.Mod) {
			if err := s.sink.SendKey(mk.Key, false); err != nil {
				return err
			}
		}
	}
	s.mods = 0
	return nil
}
