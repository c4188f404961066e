// Package display connects to a simulation and draws it on a terminal. One
// Session serves one connection: it owns the receive ring, the parser, the
// send framer, the key scheduler and the active renderer, all driven from
// the goroutine that calls Run.
package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"
	"pkt.systems/simlink/internal/eventbus"
	"pkt.systems/simlink/internal/framer"
	"pkt.systems/simlink/internal/input"
	"pkt.systems/simlink/internal/logx"
	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/internal/parser"
	"pkt.systems/simlink/internal/render"
	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/internal/shm"
	"pkt.systems/simlink/internal/termkeys"
	"pkt.systems/simlink/internal/transport"
	"pkt.systems/simlink/internal/wire"
	"pkt.systems/simlink/schema"
)

const (
	// DefaultRingSize is the receive ring capacity.
	DefaultRingSize = 64 << 10
	// DefaultMaxFPS paces frame requests.
	DefaultMaxFPS = 35
	readChunk     = 32 << 10
	shutdownFlush = 250 * time.Millisecond
)

// Size is a terminal size in cells.
type Size struct {
	Cols int
	Rows int
}

type Options struct {
	SocketPath string
	Renderer   render.Kind
	ColorMode  render.ColorMode
	// StatusLine reserves the bottom row for HUD values and messages.
	StatusLine bool
	KeyHold    time.Duration
	// MaxFPS bounds frame requests; zero uses DefaultMaxFPS, negative
	// requests the next frame as soon as one arrives.
	MaxFPS     int
	RingSize   int
	Dial       transport.DialOptions
	ConfigVars map[string]string
	// NoSharedMemory forces inline frames, for terminals on another host.
	NoSharedMemory bool
	Metrics        *metrics.Metrics
	Bus            *eventbus.Bus
}

func (o Options) withDefaults() Options {
	if o.Renderer == "" {
		o.Renderer = render.KindCells
	}
	if o.ColorMode == "" {
		o.ColorMode = render.TrueColor
	}
	if o.MaxFPS == 0 {
		o.MaxFPS = DefaultMaxFPS
	}
	if o.RingSize <= 0 {
		o.RingSize = DefaultRingSize
	}
	if o.Dial.Metrics == nil {
		o.Dial.Metrics = o.Metrics
	}
	return o
}

// chunk is one read handed from the reader goroutine to the loop.
type chunk struct {
	buf []byte
	n   int
	err error
}

// Session is one display connection.
type Session struct {
	id     string
	opt    Options
	out    io.Writer
	screen *render.Screen
	size   Size
	log    pslog.Logger

	conn     *transport.Conn
	res      schema.Resolution
	ring     *ringbuf.Ring
	in       *parser.Parser[schema.SimMessage]
	send     *framer.Framer
	sched    *input.Scheduler
	renderer render.Renderer
	shmName  string

	chunks chan chunk
	free   chan []byte
	done   chan struct{}

	lastFrame    schema.Frame
	lastRequest  time.Time
	frameWanted  bool
	pace         *time.Timer
	pacePending  bool
	quit         bool
	status       schema.PlayerStatus
	hasStatus    bool
	message      string
	screenActive bool

	shutdownOnce sync.Once
}

// New prepares a session drawing onto out, which is size cells large.
func New(out io.Writer, size Size, opt Options) (*Session, error) {
	opt = opt.withDefaults()
	if _, err := render.ParseKind(string(opt.Renderer)); err != nil {
		return nil, err
	}
	if _, err := render.ParseColorMode(string(opt.ColorMode)); err != nil {
		return nil, err
	}
	ring, err := ringbuf.New(opt.RingSize)
	if err != nil {
		return nil, fmt.Errorf("receive ring: %w", err)
	}
	pace := time.NewTimer(time.Hour)
	pace.Stop()
	return &Session{
		id:     uuid.NewString(),
		opt:    opt,
		out:    out,
		screen: render.NewScreen(out),
		size:   size,
		ring:   ring,
		pace:   pace,
		done:   make(chan struct{}),
	}, nil
}

// ID identifies the session on the event bus.
func (s *Session) ID() string { return s.id }

// Renderer returns the active renderer kind.
func (s *Session) Renderer() render.Kind { return s.opt.Renderer }

// Run connects and serves the link until the simulation quits, the user
// quits, keys closes, or ctx ends. A simulation going away is not an
// error.
func (s *Session) Run(ctx context.Context, keys <-chan termkeys.Event, resize <-chan Size) error {
	ctx = logx.ContextWithSide(ctx, "display")
	s.log = pslog.Ctx(ctx).With("session", s.id)
	defer s.Shutdown()

	conn, hs, err := transport.Dial(ctx, s.opt.SocketPath, s.opt.Dial)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return s.fail(err)
	}
	s.conn = conn
	s.res = hs.Resolution
	s.log = logx.WithConn(s.log, s.opt.SocketPath)
	conn.SetMetrics(s.opt.Metrics, "display")
	s.send = framer.New(conn, framer.Options{Side: "display", Metrics: s.opt.Metrics})
	s.sched = input.New(s, input.Options{Hold: s.opt.KeyHold})
	in, err := parser.NewClient(s.ring, s.res, parser.DefaultLimits, parser.HandlerFunc[schema.SimMessage](s.handle))
	if err != nil {
		return s.fail(err)
	}
	s.in = in.WithMetrics(s.opt.Metrics)
	s.opt.Bus.OnLink(s.id, true)
	s.log.Info("link established", "resolution", s.res.String())

	s.screen.EnterAltScreen()
	s.screen.EnableMouse()
	s.screenActive = true
	if err := s.useRenderer(s.opt.Renderer); err != nil {
		return s.fail(err)
	}
	if err := s.greet(); err != nil {
		return s.fail(err)
	}
	s.startReader()

	for !s.quit {
		select {
		case <-ctx.Done():
			s.log.Info("display stopping", "reason", context.Cause(ctx))
			return nil
		case c := <-s.chunks:
			err := s.consume(c)
			if errors.Is(err, schema.ErrPeerClosed) {
				s.log.Info("simulation disconnected")
				return nil
			}
			if err != nil {
				return s.fail(err)
			}
		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			if err := s.key(ev); err != nil {
				return s.fail(err)
			}
		case sz := <-resize:
			s.resize(sz)
		case <-s.sched.C():
			if err := s.sched.ReleaseExpired(); err != nil {
				return s.fail(err)
			}
		case <-s.pace.C:
			s.pacePending = false
			if err := s.requestFrame(); err != nil {
				return s.fail(err)
			}
		}
		if err := s.send.Flush(); err != nil {
			if errors.Is(err, schema.ErrPeerClosed) {
				s.log.Info("simulation disconnected")
				return nil
			}
			return s.fail(err)
		}
	}
	s.log.Info("simulation quit")
	return nil
}

func (s *Session) fail(err error) error {
	s.opt.Metrics.FatalError(string(schema.Classify(err)))
	logx.Fatal(s.log, "link failed", err)
	return err
}

// greet sends the configured variables and the frame transport, then asks
// for the first frame.
func (s *Session) greet() error {
	names := make([]string, 0, len(s.opt.ConfigVars))
	for name := range s.opt.ConfigVars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := wire.WriteSetConfigVar(s.send, name, s.opt.ConfigVars[name]); err != nil {
			return err
		}
	}
	if s.shmName != "" {
		if err := wire.WriteSetFrameShmName(s.send, s.shmName); err != nil {
			return err
		}
	}
	if err := s.requestFrame(); err != nil {
		return err
	}
	return s.send.Flush()
}

func (s *Session) requestFrame() error {
	if s.frameWanted {
		return nil
	}
	s.frameWanted = true
	s.lastRequest = time.Now()
	return wire.WriteWantFrame(s.send)
}

// frameDone schedules the next frame request.
func (s *Session) frameDone() error {
	s.frameWanted = false
	if s.opt.MaxFPS < 0 {
		return s.requestFrame()
	}
	wait := time.Until(s.lastRequest.Add(time.Second / time.Duration(s.opt.MaxFPS)))
	if wait <= 0 {
		return s.requestFrame()
	}
	if !s.pacePending {
		s.pacePending = true
		s.pace.Reset(wait)
	}
	return nil
}

// startReader runs the blocking socket reads on their own goroutine,
// handing filled buffers to the loop and getting them back once consumed.
func (s *Session) startReader() {
	s.chunks = make(chan chunk)
	s.free = make(chan []byte, 2)
	s.free <- make([]byte, readChunk)
	s.free <- make([]byte, readChunk)
	go func() {
		for {
			var buf []byte
			select {
			case buf = <-s.free:
			case <-s.done:
				return
			}
			n, err := s.conn.ReadChunk(buf)
			select {
			case s.chunks <- chunk{buf: buf, n: n, err: err}:
			case <-s.done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// consume moves one chunk through the ring and parser.
func (s *Session) consume(c chunk) error {
	defer func() { s.free <- c.buf }()
	data := c.buf[:c.n]
	for len(data) > 0 && !s.quit {
		n := s.ring.Write(data)
		data = data[n:]
		if _, err := s.in.Advance(); err != nil {
			return err
		}
	}
	if c.err != nil {
		if errors.Is(c.err, schema.ErrPeerClosed) && s.in.Pending() {
			return s.in.Close()
		}
		return c.err
	}
	return nil
}

func (s *Session) key(ev termkeys.Event) error {
	switch ev.Kind {
	case termkeys.KindQuit:
		s.log.Info("quit requested")
		s.quit = true
		return nil
	case termkeys.KindSwitchRenderer:
		next := render.KindOverlay
		if s.opt.Renderer == render.KindOverlay {
			next = render.KindCells
		}
		return s.SwitchRenderer(next)
	case termkeys.KindMouse:
		return s.sched.SetMouseButton(ev.Button, ev.Down)
	default:
		return s.sched.Press(ev.Key, ev.Mods)
	}
}

// SendKey implements input.KeySink.
func (s *Session) SendKey(key uint8, pressed bool) error {
	return wire.WritePressKey(s.send, key, pressed)
}

// SendMouseButtons implements input.KeySink.
func (s *Session) SendMouseButtons(mask uint8) error {
	return wire.WriteMouseButtons(s.send, mask)
}

func (s *Session) gridRows() int {
	if s.opt.StatusLine && s.size.Rows > 1 {
		return s.size.Rows - 1
	}
	return s.size.Rows
}

func (s *Session) resize(sz Size) {
	if sz == s.size {
		return
	}
	s.size = sz
	s.log.Debug("terminal resized", "cols", sz.Cols, "rows", sz.Rows)
	s.screen.Clear()
	if s.renderer != nil {
		s.renderer.Resize(sz.Cols, s.gridRows())
		if s.lastFrame.Pixels != nil && s.renderer.Name() == string(render.KindCells) {
			s.draw(s.lastFrame)
		}
	}
	s.drawStatus()
}

// SwitchRenderer replaces the active renderer and tells the simulation
// which frame transport to use from now on.
func (s *Session) SwitchRenderer(kind render.Kind) error {
	if kind == s.opt.Renderer && s.renderer != nil {
		return nil
	}
	if err := s.useRenderer(kind); err != nil {
		return err
	}
	s.screen.Clear()
	s.drawStatus()
	return wire.WriteSetFrameShmName(s.send, s.shmName)
}

func (s *Session) useRenderer(kind render.Kind) error {
	if s.renderer != nil {
		if err := s.renderer.Close(); err != nil {
			s.log.Warn("close renderer", "err", err)
		}
		s.renderer = nil
	}
	s.shmName = ""
	var r render.Renderer
	switch kind {
	case render.KindOverlay:
		o, err := render.NewOverlay(s.out, render.OverlayOptions{Cols: s.size.Cols, Rows: s.gridRows()})
		if err != nil {
			return err
		}
		if !s.opt.NoSharedMemory && shm.Supported() {
			s.shmName = shm.NewName()
		}
		r = o
	default:
		kind = render.KindCells
		r = render.NewCells(s.out, render.CellOptions{Mode: s.opt.ColorMode, Cols: s.size.Cols, Rows: s.gridRows()})
	}
	s.renderer = r
	s.opt.Renderer = kind
	logx.WithRenderer(s.log, r.Name()).Info("renderer active", "shm", s.shmName)
	return nil
}

func (s *Session) handle(msg schema.SimMessage) error {
	switch m := msg.(type) {
	case schema.Frame:
		s.lastFrame = m
		s.draw(m)
		s.opt.Bus.OnFrame(s.id, m)
		return s.frameDone()
	case schema.FrameShmReady:
		s.shmFrame()
		return s.frameDone()
	case schema.SetTitle:
		s.opt.Bus.OnText(s.id, m.SimKind(), m.Title)
		return s.screen.SetTitle(m.Title)
	case schema.Quit:
		s.quit = true
	case schema.PlayerStatus:
		s.status, s.hasStatus = m, true
		s.opt.Bus.OnStatus(s.id, m)
		s.drawStatus()
	case schema.GameMessage:
		s.showMessage(m.SimKind(), m.Text)
	case schema.MenuMessage:
		s.showMessage(m.SimKind(), m.Text)
	case schema.AutomapTitle:
		s.showMessage(m.SimKind(), m.Title)
	case schema.Menu:
		if int(m.Selected) < len(m.Items) {
			s.showMessage(m.SimKind(), "menu: "+m.Items[m.Selected])
		}
	case schema.FinaleText:
		s.showMessage(m.SimKind(), m.Text)
	case schema.Intermission, schema.Finale:
		s.log.Debug("ui state", "kind", msg.SimKind().String())
	}
	return nil
}

func (s *Session) showMessage(kind schema.SimKind, text string) {
	s.message = text
	s.opt.Bus.OnText(s.id, kind, text)
	s.drawStatus()
}

// shmFrame draws a frame the simulation left in shared memory. The cell
// renderer and bus subscribers need the pixels copied out first.
func (s *Session) shmFrame() {
	frame := schema.Frame{Width: s.res.Width, Height: s.res.Height, ShmName: s.shmName}
	if s.shmName == "" {
		s.log.Warn("shared memory frame without an agreed name")
		return
	}
	needPixels := s.renderer.Name() != string(render.KindOverlay) || s.opt.Bus.HasSubscribers(s.id)
	if needPixels {
		px, err := shm.Read(s.shmName, s.res.FrameBytes())
		if err != nil {
			s.log.Warn("read shared memory frame", "shm", s.shmName, "err", err)
			return
		}
		frame.Pixels = px
		s.lastFrame = frame
		s.opt.Bus.OnFrame(s.id, frame)
	}
	s.draw(frame)
}

func (s *Session) draw(frame schema.Frame) {
	start := time.Now()
	if err := s.renderer.Refresh(frame); err != nil {
		s.log.Warn("render frame", "renderer", s.renderer.Name(), "err", err)
		return
	}
	s.opt.Metrics.FrameRendered(s.renderer.Name(), time.Since(start))
}

func (s *Session) drawStatus() {
	if !s.opt.StatusLine || s.size.Rows < 2 {
		return
	}
	text := s.message
	if s.hasStatus {
		st := s.status
		text = fmt.Sprintf("HP %d  AR %d  AMMO %d", st.Health, st.Armor, st.ReadyAmmo)
		if s.message != "" {
			text += "  | " + s.message
		}
	}
	if err := s.screen.StatusLine(s.size.Rows, s.size.Cols, text); err != nil {
		s.log.Debug("status line", "err", err)
	}
}

// Shutdown releases held keys, flushes what it can, closes the link and
// the renderer, and restores the terminal. Safe to call more than once.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.done)
		s.pace.Stop()
		if s.sched != nil {
			if err := s.sched.ReleaseAll(); err != nil {
				s.log.Debug("release keys", "err", err)
			}
			s.sched.Stop()
		}
		if s.send != nil {
			if err := s.send.FlushBestEffort(shutdownFlush); err != nil {
				s.log.Debug("final flush dropped", "err", err)
			}
		}
		if s.conn != nil {
			_ = s.conn.Close()
			s.opt.Bus.OnLink(s.id, false)
		}
		if s.renderer != nil {
			if err := s.renderer.Close(); err != nil {
				s.log.Debug("close renderer", "err", err)
			}
		}
		if s.screenActive {
			s.screen.DisableMouse()
			s.screen.ExitAltScreen()
		}
		if s.log != nil {
			s.log.Info("display closed")
		}
	})
}
