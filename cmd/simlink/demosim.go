package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/simlink/internal/demo"
	"pkt.systems/simlink/sim"
)

func newDemoSimCmd(opts *rootOptions) *cobra.Command {
	var tickRate int
	cmd := &cobra.Command{
		Use:   "demo-sim",
		Short: "Host the built-in test pattern simulation on the link socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if tickRate > 0 {
				cfg.Sim.TickRate = tickRate
			}
			logger := pslog.Ctx(cmd.Context())
			obs := newObservability(logger)
			host, err := sim.NewHost(demo.New(), sim.Options{
				SocketPath: cfg.SocketPath,
				TickRate:   cfg.Sim.TickRate,
				KeyQueue:   cfg.Sim.KeyQueue,
				Metrics:    obs.metrics,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			runCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			obs.startDebug(runCtx, g, cfg.Debug.Addr)
			g.Go(func() error {
				defer cancel()
				return host.Run(runCtx)
			})
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("demo simulation stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&tickRate, "tick-rate", 0, "simulation ticks per second")
	return cmd
}
