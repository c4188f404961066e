// Package transport carries the link over a filesystem-addressed unix
// stream socket: one listener accepting one peer on the simulation side and
// a retrying dialer on the display side.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
	"pkt.systems/pslog"
	"pkt.systems/simlink/internal/logx"
	"pkt.systems/simlink/schema"
)

// maxSocketPath is the usable length of sockaddr_un.sun_path.
var maxSocketPath = len(unix.RawSockaddrUnix{}.Path) - 1

// Listener accepts exactly one peer.
type Listener struct {
	ln   *net.UnixListener
	path string
	log  pslog.Logger
	once sync.Once
}

// Listen binds path. A stale socket file at path is replaced; any other kind
// of file is left alone and reported.
func Listen(ctx context.Context, path string) (*Listener, error) {
	if path == "" {
		return nil, errors.New("socket path is required")
	}
	if len(path) > maxSocketPath {
		return nil, fmt.Errorf("socket path %q is %d bytes, limit is %d", path, len(path), maxSocketPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if info, err := os.Lstat(path); err == nil {
		if info.Mode().Type() != fs.ModeSocket {
			return nil, fmt.Errorf("refusing to replace non-socket file %s", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", schema.ErrTransport, path, err)
	}
	ln.SetUnlinkOnClose(false)
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}
	log := logx.WithConn(pslog.Ctx(ctx), path)
	log.Info("link listening")
	return &Listener{ln: ln, path: path, log: log}, nil
}

// Path returns the bound socket path.
func (l *Listener) Path() string {
	return l.path
}

// Accept waits for one peer, then closes and unlinks the listener. Aborted
// handshakes at the socket layer are retried.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()
	defer l.Close()
	for {
		c, err := l.ln.AcceptUnix()
		if err == nil {
			conn, err := newConn(c)
			if err != nil {
				_ = c.Close()
				return nil, err
			}
			conn.peerPID = peerPID(conn.raw)
			logx.WithPeer(l.log, conn.peerPID).Info("link accepted")
			return conn, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPERM) {
			l.log.Warn("link accept retry", "err", err)
			continue
		}
		return nil, fmt.Errorf("%w: accept: %v", schema.ErrTransport, err)
	}
}

// Close stops listening and removes the socket file. Safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.ln.Close()
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
			err = rmErr
		}
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		l.log.Debug("link listener closed")
	})
	return err
}
