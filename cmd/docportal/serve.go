package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/docportal/internal/bootstrap"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var (
		addr    string
		backend string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}

			logger, err := bootstrap.NewLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			rt, err := bootstrap.NewRuntime(cmd.Context(), cfg, bootstrap.Options{Logger: logger})
			if err != nil {
				return err
			}
			return rt.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http_addr")
	cmd.Flags().StringVar(&backend, "backend", "", "auth backend: local or supabase")
	return cmd
}
