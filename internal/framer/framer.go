// Package framer coalesces encoded messages into a bounded send buffer and
// writes it to the link socket.
package framer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/schema"
)

// DefaultCapacity is used when Options.Capacity is zero.
const DefaultCapacity = 64 * 1024

// Options configures a Framer.
type Options struct {
	// Capacity bounds the send buffer. Appends that would exceed it flush first.
	Capacity int
	// Side labels metrics ("sim" or "display").
	Side    string
	Metrics *metrics.Metrics
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Framer buffers outbound bytes. It implements wire.Encoder and is owned by a
// single goroutine.
type Framer struct {
	w   io.Writer
	buf []byte
	opt Options
}

// New wraps w.
func New(w io.Writer, opt Options) *Framer {
	if opt.Capacity <= 0 {
		opt.Capacity = DefaultCapacity
	}
	if opt.Capacity < 4 {
		opt.Capacity = 4
	}
	return &Framer{w: w, buf: make([]byte, 0, opt.Capacity), opt: opt}
}

// Buffered returns the number of unflushed bytes.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func (f *Framer) Cap() int {
	return f.opt.Capacity
}

func (f *Framer) reserve(n int) error {
	if len(f.buf)+n > f.opt.Capacity {
		return f.Flush()
	}
	return nil
}

func (f *Framer) WriteU8(v uint8) error {
	if err := f.reserve(1); err != nil {
		return err
	}
	f.buf = append(f.buf, v)
	return nil
}

func (f *Framer) WriteU16(v uint16) error {
	if err := f.reserve(2); err != nil {
		return err
	}
	f.buf = binary.LittleEndian.AppendUint16(f.buf, v)
	return nil
}

func (f *Framer) WriteU32(v uint32) error {
	if err := f.reserve(4); err != nil {
		return err
	}
	f.buf = binary.LittleEndian.AppendUint32(f.buf, v)
	return nil
}

// WriteBytes appends p, flushing as often as needed when p is larger than
// the free space.
func (f *Framer) WriteBytes(p []byte) error {
	for len(p) > 0 {
		room := f.opt.Capacity - len(f.buf)
		if room == 0 {
			if err := f.Flush(); err != nil {
				return err
			}
			continue
		}
		n := min(room, len(p))
		f.buf = append(f.buf, p[:n]...)
		p = p[n:]
	}
	return nil
}

// Flush writes every buffered byte, looping over partial writes.
func (f *Framer) Flush() error {
	if len(f.buf) == 0 {
		return nil
	}
	sent := 0
	for sent < len(f.buf) {
		n, err := f.w.Write(f.buf[sent:])
		sent += n
		if err == nil {
			continue
		}
		if transient(err) {
			continue
		}
		f.consume(sent)
		return classify(err)
	}
	f.consume(sent)
	return nil
}

// FlushBestEffort flushes with a write deadline when the writer supports one.
// Used on shutdown where the peer may no longer be reading.
func (f *Framer) FlushBestEffort(timeout time.Duration) error {
	d, ok := f.w.(deadliner)
	if ok && timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(timeout)); err == nil {
			defer d.SetWriteDeadline(time.Time{})
		}
	}
	err := f.Flush()
	if err != nil {
		f.buf = f.buf[:0]
	}
	return err
}

// Discard drops unflushed bytes.
func (f *Framer) Discard() {
	f.buf = f.buf[:0]
}

func (f *Framer) consume(n int) {
	f.opt.Metrics.AddBytesSent(f.opt.Side, n)
	rest := copy(f.buf, f.buf[n:])
	f.buf = f.buf[:rest]
}

func transient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}

func classify(err error) error {
	switch {
	case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ECONNRESET),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", schema.ErrPeerClosed, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: write deadline exceeded", schema.ErrTransport)
	default:
		return fmt.Errorf("%w: %v", schema.ErrTransport, err)
	}
}
