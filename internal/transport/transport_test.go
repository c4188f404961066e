package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/schema"
)

var testHandshake = schema.Handshake{
	Version:    schema.ProtocolVersion,
	Resolution: schema.Resolution{Width: 320, Height: 200},
}

func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sim.sock")
}

type accepted struct {
	conn *Conn
	err  error
}

func serveOne(t *testing.T, ctx context.Context, path string, h schema.Handshake) <-chan accepted {
	t.Helper()
	ln, err := Listen(ctx, path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	out := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err == nil {
			err = conn.SendHandshake(h)
		}
		out <- accepted{conn: conn, err: err}
	}()
	return out
}

func recvUntil(t *testing.T, conn *Conn, ring *ringbuf.Ring, want int) error {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ring.Len() < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d bytes, have %d", want, ring.Len())
		}
		n, err := conn.Recv(ring)
		if err != nil {
			return err
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

func TestHandshakeAndRecv(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path := socketPath(t)
	srvCh := serveOne(t, ctx, path, testHandshake)

	client, h, err := Dial(ctx, path, DialOptions{Attempts: 5, InitialBackoff: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if h != testHandshake {
		t.Fatalf("expected %+v, got %+v", testHandshake, h)
	}
	srv := <-srvCh
	if srv.err != nil {
		t.Fatalf("accept: %v", srv.err)
	}
	defer srv.conn.Close()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected socket file removed after accept, got %v", err)
	}

	ring, _ := ringbuf.New(16)
	if n, err := srv.conn.Recv(ring); err != nil || n != 0 {
		t.Fatalf("expected would-block, got %d (%v)", n, err)
	}
	// wrap the ring so the receive needs both segments
	ring.Write([]byte("abcdefghijkl"))
	ring.Read(10)
	if _, err := client.Write([]byte("WXYZ0123456")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := recvUntil(t, srv.conn, ring, 13); err != nil {
		t.Fatalf("recv: %v", err)
	}
	got, _ := ring.Read(13)
	if string(got) != "klWXYZ0123456" {
		t.Fatalf("expected klWXYZ0123456, got %q", got)
	}
}

func TestVersionMismatchRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path := socketPath(t)
	srvCh := serveOne(t, ctx, path, testHandshake)

	zero := uint32(0)
	conn, h, err := Dial(ctx, path, DialOptions{Attempts: 5, InitialBackoff: 5 * time.Millisecond, ExpectedVersion: &zero})
	if !errors.Is(err, schema.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if conn != nil {
		t.Fatalf("expected no connection on mismatch")
	}
	if h.Version != 1 {
		t.Fatalf("expected reported version 1, got %d", h.Version)
	}
	srv := <-srvCh
	if srv.err != nil {
		t.Fatalf("accept: %v", srv.err)
	}
	defer srv.conn.Close()
	ring, _ := ringbuf.New(16)
	if err := recvUntil(t, srv.conn, ring, 1); !errors.Is(err, schema.ErrPeerClosed) {
		t.Fatalf("expected peer closed on sim side, got %v", err)
	}
}

func TestDialExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	_, _, err := Dial(ctx, socketPath(t), DialOptions{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	if !errors.Is(err, schema.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("expected capped backoff to finish quickly")
	}
}

func TestDialHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Dial(ctx, socketPath(t), DialOptions{Attempts: 100, InitialBackoff: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestListenRefusesRegularFile(t *testing.T) {
	path := socketPath(t)
	if err := os.WriteFile(path, []byte("keep"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Listen(context.Background(), path); err == nil {
		t.Fatalf("expected listen to refuse a regular file")
	}
	if data, _ := os.ReadFile(path); string(data) != "keep" {
		t.Fatalf("expected regular file untouched")
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := socketPath(t)
	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("stale listen: %v", err)
	}
	stale.SetUnlinkOnClose(false)
	_ = stale.Close()

	ln, err := Listen(context.Background(), path)
	if err != nil {
		t.Fatalf("listen over stale socket: %v", err)
	}
	_ = ln.Close()
	if err := ln.Close(); err != nil {
		t.Fatalf("expected idempotent close, got %v", err)
	}
}

func TestListenRejectsLongPath(t *testing.T) {
	long := filepath.Join(t.TempDir(), strings.Repeat("x", maxSocketPath))
	if _, err := Listen(context.Background(), long); err == nil {
		t.Fatalf("expected error for %d byte path", len(long))
	}
}

func TestAcceptCancelled(t *testing.T) {
	path := socketPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := Listen(ctx, path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("accept did not return after cancel")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected socket removed, got %v", err)
	}
}

func TestReadChunkPeerClosed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path := socketPath(t)
	srvCh := serveOne(t, ctx, path, testHandshake)
	client, _, err := Dial(ctx, path, DialOptions{Attempts: 5, InitialBackoff: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	srv := <-srvCh
	if srv.err != nil {
		t.Fatalf("accept: %v", srv.err)
	}
	if _, err := srv.conn.Write([]byte{byte(schema.SimQuit)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = srv.conn.Close()
	buf := make([]byte, 8)
	n, err := client.ReadChunk(buf)
	if err != nil || n != 1 {
		t.Fatalf("expected one byte, got %d (%v)", n, err)
	}
	if _, err := client.ReadChunk(buf); !errors.Is(err, schema.ErrPeerClosed) {
		t.Fatalf("expected ErrPeerClosed, got %v", err)
	}
}
