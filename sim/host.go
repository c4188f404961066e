package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/simlink/internal/framer"
	"pkt.systems/simlink/internal/logx"
	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/internal/parser"
	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/internal/shm"
	"pkt.systems/simlink/internal/transport"
	"pkt.systems/simlink/internal/wire"
	"pkt.systems/simlink/schema"
)

const (
	// DefaultTickRate matches the classic 35Hz game tick.
	DefaultTickRate = 35
	// DefaultRecvRing holds inbound display messages between ticks.
	DefaultRecvRing = 4096
	// DefaultKeyQueue holds pending key events, two bytes each.
	DefaultKeyQueue = 512
	shutdownFlush   = 250 * time.Millisecond
)

type Options struct {
	SocketPath string
	TickRate   int
	RecvRing   int
	KeyQueue   int
	// SendBuffer defaults to two inline frames.
	SendBuffer int
	Metrics    *metrics.Metrics
}

func (o Options) withDefaults(res schema.Resolution) Options {
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.RecvRing <= 0 {
		o.RecvRing = DefaultRecvRing
	}
	if o.KeyQueue <= 0 {
		o.KeyQueue = DefaultKeyQueue
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 2 * res.FrameBytes()
	}
	return o
}

// Host drives one Simulation for one display connection.
type Host struct {
	sim  Simulation
	opt  Options
	res  schema.Resolution
	log  pslog.Logger
	conn *transport.Conn
	out  *framer.Framer
	recv *ringbuf.Ring
	keys *ringbuf.Ring
	in   *parser.Parser[schema.ClientMessage]

	pixels     []byte
	wantFrame  bool
	shmName    string
	shmWritten bool
	lastStatus schema.PlayerStatus
	sentStatus bool

	shutdownOnce sync.Once
}

func NewHost(s Simulation, opt Options) (*Host, error) {
	if s == nil {
		return nil, errors.New("simulation is required")
	}
	res := s.Resolution()
	if !res.Valid() {
		return nil, fmt.Errorf("invalid simulation resolution %s", res)
	}
	opt = opt.withDefaults(res)
	recv, err := ringbuf.New(opt.RecvRing)
	if err != nil {
		return nil, fmt.Errorf("receive ring: %w", err)
	}
	keys, err := ringbuf.New(opt.KeyQueue)
	if err != nil {
		return nil, fmt.Errorf("key queue: %w", err)
	}
	h := &Host{
		sim:    s,
		opt:    opt,
		res:    res,
		recv:   recv,
		keys:   keys,
		pixels: make([]byte, res.FrameBytes()),
	}
	in, err := parser.NewSim(recv, parser.SimLimits, parser.HandlerFunc[schema.ClientMessage](h.handle))
	if err != nil {
		return nil, err
	}
	h.in = in.WithMetrics(opt.Metrics)
	return h, nil
}

// Run listens, serves one display until it disconnects or ctx ends, and
// shuts the link down. A display disconnecting is not an error.
func (h *Host) Run(ctx context.Context) error {
	ctx = logx.ContextWithSide(ctx, "sim")
	h.log = pslog.Ctx(ctx)
	ln, err := transport.Listen(ctx, h.opt.SocketPath)
	if err != nil {
		return err
	}
	conn, err := ln.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	h.log = logx.WithPeer(logx.WithConn(h.log, h.opt.SocketPath), conn.PeerPID())
	conn.SetMetrics(h.opt.Metrics, "sim")
	h.conn = conn
	h.out = framer.New(conn, framer.Options{Capacity: h.opt.SendBuffer, Side: "sim", Metrics: h.opt.Metrics})
	defer h.Shutdown()

	if err := conn.SendHandshake(schema.Handshake{Version: schema.ProtocolVersion, Resolution: h.res}); err != nil {
		return h.fail(err)
	}
	h.log.Info("link established", "resolution", h.res.String(), "tick_rate", h.opt.TickRate)

	ticker := time.NewTicker(time.Second / time.Duration(h.opt.TickRate))
	defer ticker.Stop()
	for {
		if err := h.tick(); err != nil {
			if errors.Is(err, schema.ErrPeerClosed) {
				h.log.Info("display disconnected")
				return nil
			}
			return h.fail(err)
		}
		select {
		case <-ctx.Done():
			h.log.Info("simulation stopping", "reason", context.Cause(ctx))
			return nil
		case <-ticker.C:
		}
	}
}

func (h *Host) fail(err error) error {
	h.opt.Metrics.FatalError(string(schema.Classify(err)))
	logx.Fatal(h.log, "link failed", err)
	return err
}

// tick runs one iteration: status, flush, receive, simulate, frame.
func (h *Host) tick() error {
	if st, ok := h.sim.Status(); ok && (!h.sentStatus || st != h.lastStatus) {
		if err := wire.WritePlayerStatus(h.out, st); err != nil {
			return err
		}
		h.lastStatus, h.sentStatus = st, true
	}
	if err := h.out.Flush(); err != nil {
		return err
	}
	if err := h.receive(); err != nil {
		return err
	}
	h.deliverKeys()
	if err := h.sim.Tick(h); err != nil {
		return fmt.Errorf("simulation tick: %w", err)
	}
	if h.wantFrame {
		h.wantFrame = false
		if err := h.sendFrame(); err != nil {
			return err
		}
	}
	return nil
}

// receive drains whatever the socket has without blocking.
func (h *Host) receive() error {
	for {
		n, err := h.conn.Recv(h.recv)
		if err != nil {
			return err
		}
		if _, err := h.in.Advance(); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (h *Host) deliverKeys() {
	for h.keys.Len() >= 2 {
		key, _ := h.keys.ReadByte()
		pressed, _ := h.keys.ReadByte()
		if pressed == schema.PressedMouseButtons {
			h.sim.Input(InputEvent{Mouse: true, Buttons: key})
			continue
		}
		h.sim.Input(InputEvent{Key: schema.NormalizeKey(key), Pressed: pressed != 0})
	}
}

func (h *Host) sendFrame() error {
	detached := h.sim.Draw(h.pixels)
	if h.shmName == "" {
		return wire.WriteFrame(h.out, h.pixels, detached)
	}
	if err := shm.Write(h.shmName, h.pixels); err != nil {
		h.log.Warn("shared memory frame failed, sending inline", "shm", h.shmName, "err", err)
		h.shmName = ""
		return wire.WriteFrame(h.out, h.pixels, detached)
	}
	h.shmWritten = true
	return wire.WriteFrameShmReady(h.out)
}

// Send implements Outbox.
func (h *Host) Send(msg schema.SimMessage) error {
	return wire.WriteSimMessage(h.out, msg)
}

func (h *Host) handle(msg schema.ClientMessage) error {
	switch m := msg.(type) {
	case schema.WantFrame:
		h.wantFrame = true
	case schema.PressKey:
		if h.keys.Free() < 2 {
			h.opt.Metrics.KeyDropped()
			h.log.Warn("key queue full, dropping key", "key", m.Key, "pressed", m.Pressed)
			return nil
		}
		h.keys.Write([]byte{m.Key, m.Pressed})
		h.log.Trace("key received", "key", m.Key, "pressed", m.Pressed)
	case schema.SetFrameShmName:
		h.setShmName(m.Name)
	case schema.SetConfigVar:
		if !h.sim.SetVariable(m.Name, m.Value) {
			h.log.Warn("unknown config variable", "name", m.Name)
			return nil
		}
		h.log.Debug("config variable set", "name", m.Name, "value", m.Value)
	}
	return nil
}

func (h *Host) setShmName(name string) {
	if name == h.shmName {
		return
	}
	h.unlinkShm()
	if name != "" {
		if err := shm.ValidName(name); err != nil {
			h.log.Warn("ignoring shared memory name", "err", err)
			name = ""
		}
	}
	h.shmName = name
	h.log.Debug("frame transport changed", "shm", name)
}

func (h *Host) unlinkShm() {
	if h.shmName == "" || !h.shmWritten {
		return
	}
	if err := shm.Unlink(h.shmName); err != nil {
		h.log.Warn("unlink shared memory", "shm", h.shmName, "err", err)
	}
	h.shmWritten = false
}

// Shutdown tells the display the simulation is going away, then closes the
// link. It is safe to call more than once.
func (h *Host) Shutdown() {
	h.shutdownOnce.Do(func() {
		if h.conn == nil {
			return
		}
		if err := wire.WriteQuit(h.out); err == nil {
			if err := h.out.FlushBestEffort(shutdownFlush); err != nil {
				h.log.Debug("final flush dropped", "err", err)
			}
		}
		if err := h.conn.Close(); err != nil {
			h.log.Debug("close link", "err", err)
		}
		h.unlinkShm()
		h.log.Info("link closed")
	})
}
