// Package sshserver serves display sessions over SSH so any terminal with an
// SSH client can watch and drive the simulation.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/simlink/display"
	"pkt.systems/simlink/internal/termkeys"
)

// Server exposes display sessions over SSH, one at a time.
type Server struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	Listener           net.Listener
	// Display configures each session. Shared memory frames are always
	// disabled since the terminal is on the client's host.
	Display display.Options
	logger  pslog.Logger
	busy    chan struct{}
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	s.busy = make(chan struct{}, 1)

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}
	if _, err := LoadAuthorizedKeys(s.AuthorizedKeysPath); err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("ssh display listening", "addr", s.Addr, "fingerprint", ssh.FingerprintSHA256(signer.PublicKey()))

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handlePublicKey re-reads the authorized keys file so edits apply to the
// next login.
func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	keys, err := LoadAuthorizedKeys(s.AuthorizedKeysPath)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	for _, allowed := range keys {
		if gliderssh.KeysEqual(allowed, key) {
			log.Info("ssh pubkey accepted")
			return true
		}
	}
	log.Warn("ssh pubkey rejected", "reason", "no matching key")
	return false
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	if id := sess.Context().SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}
	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}
	select {
	case s.busy <- struct{}{}:
		defer func() { <-s.busy }()
	default:
		log.Info("ssh session rejected", "reason", "display busy")
		_, _ = io.WriteString(sess, "another display session is active\n")
		_ = sess.Exit(1)
		return
	}

	opt := s.Display
	opt.NoSharedMemory = true
	ds, err := display.New(sess, display.Size{Cols: pty.Window.Width, Rows: pty.Window.Height}, opt)
	if err != nil {
		log.Error("ssh session failed", "err", err)
		_, _ = fmt.Fprintf(sess, "display: %v\n", err)
		_ = sess.Exit(1)
		return
	}
	log = log.With("session", ds.ID())
	log.Info("ssh session opened", "term", pty.Term, "cols", pty.Window.Width, "rows", pty.Window.Height)

	ctx := pslog.ContextWithLogger(sess.Context(), log)
	keys := make(chan termkeys.Event, 16)
	go termkeys.Read(sess, keys)
	resize := make(chan display.Size, 1)
	go forwardWindows(ctx, winCh, resize)

	code := 0
	if err := ds.Run(ctx, keys, resize); err != nil {
		_, _ = fmt.Fprintf(sess, "\r\nlink failed: %v\r\n", err)
		code = 1
	}
	_ = sess.Exit(code)
	log.Info("ssh session closed")
}

// forwardWindows keeps only the latest window size pending.
func forwardWindows(ctx context.Context, winCh <-chan gliderssh.Window, out chan display.Size) {
	for {
		select {
		case <-ctx.Done():
			return
		case win, ok := <-winCh:
			if !ok {
				return
			}
			size := display.Size{Cols: win.Width, Rows: win.Height}
			select {
			case out <- size:
			default:
				select {
				case <-out:
				default:
				}
				out <- size
			}
		}
	}
}

// LoadAuthorizedKeys parses an OpenSSH authorized_keys file.
func LoadAuthorizedKeys(path string) ([]ssh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	var keys []ssh.PublicKey
	for len(data) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			// ParseAuthorizedKey skips comments and blank lines and only
			// fails once no key is left.
			break
		}
		keys = append(keys, key)
		data = rest
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys in %s", path)
	}
	return keys, nil
}
