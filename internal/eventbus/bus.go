package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/simlink/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventFrame carries a rendered frame.
	EventFrame EventType = "frame"
	// EventStatus carries HUD values.
	EventStatus EventType = "status"
	// EventText carries titles and messages shown to the player.
	EventText EventType = "text"
	// EventLink carries connect and disconnect notices.
	EventLink EventType = "link"
)

// AllSessions subscribes to every session.
const AllSessions = ""

// Event is something a display session observed on its link.
type Event struct {
	Type    EventType
	Session string
	Frame   schema.Frame
	Status  schema.PlayerStatus
	Kind    schema.SimKind
	Text    string
	Up      bool
}

// Bus fans out events to per-session subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[string]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[string]map[chan Event]struct{}),
		log:   logger,
		depth: 16,
	}
}

// Subscribe registers a subscriber for the session, or for all sessions
// with AllSessions, and returns a channel + cancel.
func (b *Bus) Subscribe(session string) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	sessionSubs := b.subs[session]
	if sessionSubs == nil {
		sessionSubs = make(map[chan Event]struct{})
		b.subs[session] = sessionSubs
	}
	sessionSubs[ch] = struct{}{}
	count := len(sessionSubs)
	b.mu.Unlock()
	b.log.With("session", session).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[session]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, session)
				}
			}
			b.mu.Unlock()
			close(ch)
			b.log.With("session", session).Debug("eventbus unsubscribe")
		})
	}
}

// HasSubscribers reports whether anyone would receive events for session.
func (b *Bus) HasSubscribers(session string) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[session]) > 0 || len(b.subs[AllSessions]) > 0
}

// OnFrame publishes a frame. Subscribers must not modify the pixels.
func (b *Bus) OnFrame(session string, frame schema.Frame) {
	b.publish(Event{Type: EventFrame, Session: session, Frame: frame, Kind: schema.SimFrame})
}

// OnStatus publishes HUD values.
func (b *Bus) OnStatus(session string, st schema.PlayerStatus) {
	b.publish(Event{Type: EventStatus, Session: session, Status: st, Kind: schema.SimPlayerStatus})
}

// OnText publishes a title or message of the given kind.
func (b *Bus) OnText(session string, kind schema.SimKind, text string) {
	b.publish(Event{Type: EventText, Session: session, Kind: kind, Text: text})
}

// OnLink publishes a connect (up) or disconnect notice.
func (b *Bus) OnLink(session string, up bool) {
	b.publish(Event{Type: EventLink, Session: session, Up: up})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs[event.Session])+len(b.subs[AllSessions]))
	for sub := range b.subs[event.Session] {
		subs = append(subs, sub)
	}
	if event.Session != AllSessions {
		for sub := range b.subs[AllSessions] {
			subs = append(subs, sub)
		}
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("session", event.Session).Trace("eventbus dropped", "type", string(event.Type), "count", dropped)
	}
}
