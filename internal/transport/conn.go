package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/internal/wire"
	"pkt.systems/simlink/schema"
)

// Conn is one end of an established link.
type Conn struct {
	c       *net.UnixConn
	raw     syscall.RawConn
	peerPID int
	side    string
	metrics *metrics.Metrics
	once    sync.Once
	bufs    [][]byte
}

func newConn(c *net.UnixConn) (*Conn, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("%w: raw conn: %v", schema.ErrTransport, err)
	}
	return &Conn{c: c, raw: raw, bufs: make([][]byte, 0, 2)}, nil
}

// PeerPID returns the peer's process id, or 0 when unknown.
func (c *Conn) PeerPID() int {
	return c.peerPID
}

// SetMetrics attributes received bytes to side.
func (c *Conn) SetMetrics(m *metrics.Metrics, side string) {
	c.metrics = m
	c.side = side
}

// SendHandshake writes the 8 byte handshake.
func (c *Conn) SendHandshake(h schema.Handshake) error {
	b, err := wire.EncodeHandshake(h)
	if err != nil {
		return err
	}
	for len(b) > 0 {
		n, err := c.c.Write(b)
		b = b[n:]
		if err != nil {
			return writeError(err)
		}
	}
	return nil
}

// Recv performs one non-blocking receive directly into the ring's free
// space. It returns (0, nil) when no data is available.
func (c *Conn) Recv(r *ringbuf.Ring) (int, error) {
	head, tail := r.WritableSegments()
	if len(head) == 0 {
		return 0, nil
	}
	c.bufs = append(c.bufs[:0], head)
	if len(tail) > 0 {
		c.bufs = append(c.bufs, tail)
	}
	var (
		n    int
		rerr error
	)
	err := c.raw.Read(func(fd uintptr) bool {
		for {
			n, _, _, _, rerr = unix.RecvmsgBuffers(int(fd), c.bufs, nil, unix.MSG_DONTWAIT)
			if rerr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, readError(err)
	}
	switch {
	case rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK:
		return 0, nil
	case rerr != nil:
		return 0, readError(rerr)
	case n == 0:
		return 0, fmt.Errorf("%w: end of stream", schema.ErrPeerClosed)
	}
	r.Commit(n)
	c.metrics.AddBytesReceived(c.side, n)
	return n, nil
}

// ReadChunk blocks until some bytes arrive.
func (c *Conn) ReadChunk(buf []byte) (int, error) {
	n, err := c.c.Read(buf)
	if n > 0 {
		c.metrics.AddBytesReceived(c.side, n)
	}
	if err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, readError(err)
	}
	return n, nil
}

// Write sends p; it is the sink for the outbound framer.
func (c *Conn) Write(p []byte) (int, error) {
	return c.c.Write(p)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.c.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.c.SetReadDeadline(t)
}

// Close releases the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.c.Close()
	})
	return err
}

func readError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("%w: %v", schema.ErrPeerClosed, err)
	case errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", schema.ErrClosed, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: read timed out", schema.ErrTransport)
	default:
		return fmt.Errorf("%w: %v", schema.ErrTransport, err)
	}
}

func writeError(err error) error {
	switch {
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", schema.ErrPeerClosed, err)
	default:
		return fmt.Errorf("%w: %v", schema.ErrTransport, err)
	}
}
