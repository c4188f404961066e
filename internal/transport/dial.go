package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/simlink/internal/logx"
	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/internal/wire"
	"pkt.systems/simlink/schema"
)

// DialOptions bound the connect retry loop.
type DialOptions struct {
	Attempts         int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
	// ExpectedVersion is compared by equality. Nil means schema.ProtocolVersion.
	ExpectedVersion *uint32
	Metrics         *metrics.Metrics
}

func (o DialOptions) withDefaults() DialOptions {
	if o.Attempts <= 0 {
		o.Attempts = 10
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	return o
}

// Dial connects to path, retrying with doubling capped backoff, then reads
// and checks the handshake. On a version mismatch the connection is closed
// before any message is read.
func Dial(ctx context.Context, path string, opt DialOptions) (*Conn, schema.Handshake, error) {
	opt = opt.withDefaults()
	expected := schema.ProtocolVersion
	if opt.ExpectedVersion != nil {
		expected = *opt.ExpectedVersion
	}
	log := logx.WithConn(pslog.Ctx(ctx), path)

	var (
		c       net.Conn
		lastErr error
		dialer  net.Dialer
		backoff = opt.InitialBackoff
	)
	for attempt := 1; attempt <= opt.Attempts; attempt++ {
		opt.Metrics.ConnectAttempt()
		c, lastErr = dialer.DialContext(ctx, "unix", path)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, schema.Handshake{}, ctx.Err()
		}
		log.Debug("link connect failed", "attempt", attempt, "err", lastErr)
		if attempt == opt.Attempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, schema.Handshake{}, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, opt.MaxBackoff)
	}
	if lastErr != nil {
		return nil, schema.Handshake{}, fmt.Errorf("%w: %d attempts to %s: %v", schema.ErrConnect, opt.Attempts, path, lastErr)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		_ = c.Close()
		return nil, schema.Handshake{}, fmt.Errorf("%w: unexpected conn type %T", schema.ErrTransport, c)
	}
	conn, err := newConn(uc)
	if err != nil {
		_ = uc.Close()
		return nil, schema.Handshake{}, err
	}

	h, err := readHandshake(conn, opt.HandshakeTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, schema.Handshake{}, err
	}
	if h.Version != expected {
		_ = conn.Close()
		return nil, h, fmt.Errorf("%w: peer speaks %d, expected %d", schema.ErrVersionMismatch, h.Version, expected)
	}
	if !h.Resolution.Valid() {
		_ = conn.Close()
		return nil, h, fmt.Errorf("%w: handshake resolution %s", schema.ErrOversized, h.Resolution)
	}
	log.Info("link connected", "version", h.Version, "resolution", h.Resolution.String())
	return conn, h, nil
}

func readHandshake(conn *Conn, timeout time.Duration) (schema.Handshake, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return schema.Handshake{}, readError(err)
	}
	buf := make([]byte, schema.HandshakeSize)
	if _, err := io.ReadFull(conn.c, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return schema.Handshake{}, fmt.Errorf("%w: handshake cut short", schema.ErrTruncated)
		}
		return schema.Handshake{}, readError(err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return schema.Handshake{}, readError(err)
	}
	return wire.DecodeHandshake(buf)
}
