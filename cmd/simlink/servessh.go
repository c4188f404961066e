package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/simlink/sshserver"
)

func newServeSSHCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-ssh",
		Short: "Serve display sessions to SSH clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SSH.Addr = addr
			}
			dopt, err := displayOptions(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			srv := &sshserver.Server{
				Addr:               cfg.SSH.Addr,
				HostKeyPath:        cfg.SSH.HostKeyPath,
				AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
				Display:            dopt,
			}
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	return cmd
}
