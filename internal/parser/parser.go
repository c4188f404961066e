// Package parser decodes messages from a ring buffer as bytes arrive.
//
// A Parser keeps the partially decoded message as explicit state: a nil
// decoder means it is waiting for a kind byte, otherwise the per-kind decoder
// records which field comes next and what has been read so far. Advance runs
// until the ring cannot satisfy the next field and returns; the next call
// picks up at the same field. Scalar and string fields are consumed only once
// all of their bytes are buffered. Frame pixels are copied out as they
// arrive, so a frame never needs to fit in the ring.
package parser

import (
	"errors"
	"fmt"

	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/internal/wire"
	"pkt.systems/simlink/schema"
)

// Limits are the sanity bounds applied to length fields.
type Limits struct {
	MaxString int
	MaxList   int
}

// DefaultLimits suit the simulation to display direction.
var DefaultLimits = Limits{MaxString: 4096, MaxList: 256}

// SimLimits bound the short strings a display may send to the simulation.
var SimLimits = Limits{MaxString: 255, MaxList: 0}

// Handler receives each fully decoded message in stream order. A non-nil
// error stops the parser and is returned from Advance.
type Handler[M any] interface {
	Handle(msg M) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[M any] func(msg M) error

func (f HandlerFunc[M]) Handle(msg M) error { return f(msg) }

type source struct {
	ring   *ringbuf.Ring
	limits Limits
}

type decoder[M any] interface {
	// step decodes as far as the ring allows. done is false when suspended.
	step(src *source) (msg M, done bool, err error)
}

// Parser is a resumable decoder for one direction of the link.
type Parser[M any] struct {
	src     source
	handler Handler[M]
	start   func(kind uint8) (decoder[M], error)
	name    func(M) string
	cur     decoder[M]
	err     error
	metrics *metrics.Metrics
}

func newParser[M any](ring *ringbuf.Ring, limits Limits, h Handler[M]) (*Parser[M], error) {
	if ring == nil {
		return nil, fmt.Errorf("parser requires a ring")
	}
	if h == nil {
		return nil, fmt.Errorf("parser requires a handler")
	}
	if limits.MaxString < 0 || limits.MaxList < 0 {
		return nil, fmt.Errorf("parser limits must not be negative")
	}
	need := limits.MaxString + 3
	if ring.Cap() < need {
		return nil, fmt.Errorf("ring capacity %d cannot hold a %d byte string field (need %d)", ring.Cap(), limits.MaxString, need)
	}
	return &Parser[M]{src: source{ring: ring, limits: limits}, handler: h}, nil
}

// WithMetrics counts decoded messages by kind.
func (p *Parser[M]) WithMetrics(m *metrics.Metrics) *Parser[M] {
	p.metrics = m
	return p
}

// Advance decodes and dispatches every complete message currently buffered.
// It returns how many were dispatched. A nil error with a partial message
// buffered is the normal suspended state. Errors are sticky.
func (p *Parser[M]) Advance() (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	count := 0
	for {
		if p.cur == nil {
			kind, ok := p.src.ring.ReadByte()
			if !ok {
				return count, nil
			}
			d, err := p.start(kind)
			if err != nil {
				p.err = err
				return count, err
			}
			p.cur = d
		}
		msg, done, err := p.cur.step(&p.src)
		if err != nil {
			p.err = err
			return count, err
		}
		if !done {
			if p.src.ring.IsFull() {
				p.err = fmt.Errorf("%w: ring of %d bytes full mid-message", schema.ErrOverflow, p.src.ring.Cap())
				return count, p.err
			}
			return count, nil
		}
		p.cur = nil
		count++
		p.metrics.MessageDecoded(p.name(msg))
		if err := p.handler.Handle(msg); err != nil {
			p.err = err
			return count, err
		}
	}
}

// Pending reports whether a message is partially decoded or bytes are buffered.
func (p *Parser[M]) Pending() bool {
	return p.cur != nil || !p.src.ring.IsEmpty()
}

// Close declares end of stream. It reports ErrTruncated if a message was cut off.
func (p *Parser[M]) Close() error {
	if errors.Is(p.err, schema.ErrClosed) {
		return nil
	}
	if p.err != nil {
		return p.err
	}
	if p.Pending() {
		p.err = fmt.Errorf("%w: %d bytes buffered", schema.ErrTruncated, p.src.ring.Len())
		return p.err
	}
	p.err = schema.ErrClosed
	return nil
}

// field helpers shared by the decoders

type stringField struct {
	n       int
	haveLen bool
}

func (f *stringField) read(src *source) (string, bool, error) {
	return f.readMax(src, src.limits.MaxString)
}

// readMax reads a string bounded by the smaller of max and the parser limit.
func (f *stringField) readMax(src *source, max int) (string, bool, error) {
	if !f.haveLen {
		n, ok := wire.ReadU16(src.ring)
		if !ok {
			return "", false, nil
		}
		limit := min(max, src.limits.MaxString)
		if int(n) > limit {
			return "", false, fmt.Errorf("%w: string of %d bytes, limit %d", schema.ErrOversized, n, limit)
		}
		f.n = int(n)
		f.haveLen = true
	}
	s, ok := wire.ReadStringBody(src.ring, f.n)
	if !ok {
		return "", false, nil
	}
	*f = stringField{}
	return s, true, nil
}

type stringList struct {
	count     int
	haveCount bool
	cur       stringField
	out       []string
}

func (l *stringList) read(src *source) ([]string, bool, error) {
	if !l.haveCount {
		n, ok := wire.ReadU16(src.ring)
		if !ok {
			return nil, false, nil
		}
		if int(n) > src.limits.MaxList {
			return nil, false, fmt.Errorf("%w: list of %d entries, limit %d", schema.ErrOversized, n, src.limits.MaxList)
		}
		l.count = int(n)
		l.haveCount = true
		l.out = make([]string, 0, l.count)
	}
	for len(l.out) < l.count {
		s, ok, err := l.cur.read(src)
		if err != nil || !ok {
			return nil, false, err
		}
		l.out = append(l.out, s)
	}
	return l.out, true, nil
}
