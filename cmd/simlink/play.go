package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/simlink/display"
	"pkt.systems/simlink/internal/render"
	"pkt.systems/simlink/internal/termkeys"
)

func newPlayCmd(opts *rootOptions) *cobra.Command {
	var (
		renderer  string
		colorMode string
		noStatus  bool
		logFile   string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Connect to a running simulation and draw it in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if renderer != "" {
				cfg.Client.Renderer = renderer
			}
			if colorMode != "" {
				cfg.Client.ColorMode = colorMode
			}
			if noStatus {
				cfg.Client.StatusLine = false
			}
			dopt, err := displayOptions(cfg)
			if err != nil {
				return err
			}

			ctx, flushLogs, err := sessionLogger(cmd.Context(), logFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer flushLogs()
			logger := pslog.Ctx(ctx)

			in, out := int(os.Stdin.Fd()), int(os.Stdout.Fd())
			if !term.IsTerminal(in) || !term.IsTerminal(out) {
				return errors.New("play needs a terminal on stdin and stdout")
			}
			cols, rows, err := term.GetSize(out)
			if err != nil {
				return fmt.Errorf("terminal size: %w", err)
			}

			obs := newObservability(logger)
			dopt.Metrics = obs.metrics
			dopt.Bus = obs.bus
			ds, err := display.New(os.Stdout, display.Size{Cols: cols, Rows: rows}, dopt)
			if err != nil {
				return err
			}

			state, err := term.MakeRaw(in)
			if err != nil {
				return fmt.Errorf("raw mode: %w", err)
			}
			defer func() { _ = term.Restore(in, state) }()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			runCtx, cancel := context.WithCancel(gctx)
			defer cancel()

			keys := make(chan termkeys.Event, 64)
			go termkeys.Read(os.Stdin, keys)
			resize := make(chan display.Size, 1)
			go watchResize(runCtx, out, resize)

			obs.startDebug(runCtx, g, cfg.Debug.Addr)
			g.Go(func() error {
				defer cancel()
				return ds.Run(runCtx, keys, resize)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&renderer, "renderer", "r", "", fmt.Sprintf("renderer (%s or %s)", render.KindCells, render.KindOverlay))
	cmd.Flags().StringVar(&colorMode, "color-mode", "", "cell colour mode (truecolor or 256)")
	cmd.Flags().BoolVar(&noStatus, "no-status", false, "use the whole terminal for the frame")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file; otherwise they are printed after the session ends")
	return cmd
}

// watchResize forwards SIGWINCH as the latest terminal size.
func watchResize(ctx context.Context, fd int, out chan display.Size) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGWINCH)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			cols, rows, err := term.GetSize(fd)
			if err != nil {
				continue
			}
			replaceLatest(out, display.Size{Cols: cols, Rows: rows})
		}
	}
}

// replaceLatest sends v, discarding an unread older value.
func replaceLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// sessionLogger keeps log lines off the terminal while it is drawn. With a
// log file they go there; otherwise they are held and written to after by
// the returned flush, which runs once the terminal is restored.
func sessionLogger(ctx context.Context, logFile string, after io.Writer) (context.Context, func(), error) {
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logger := pslog.NewWithOptions(f, pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel})
		return pslog.ContextWithLogger(ctx, logger), func() { _ = f.Close() }, nil
	}
	held := &heldLog{}
	logger := pslog.NewWithOptions(held, pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.InfoLevel})
	return pslog.ContextWithLogger(ctx, logger), func() { held.writeTo(after) }, nil
}

// heldLog buffers log output from any goroutine.
type heldLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (h *heldLog) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.Write(p)
}

func (h *heldLog) writeTo(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, _ = h.buf.WriteTo(w)
}
