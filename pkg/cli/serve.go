package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harunnryd/voxrelay/pkg/backend"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/observers"
	"github.com/harunnryd/voxrelay/pkg/runner"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development backend",
		Long:  "Serve /stt, /chat, /tts, /health and /metrics backed by the providers under vendors.*.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			if addr != "" {
				cfg.Server.Addr = addr
			}
			log := logging.NewComponentLogger(deps.Logger, "backend")
			srv, err := backend.FromConfig(cfg, backend.BuildOptions{
				Lookup:   deps.Lookup,
				Logger:   log,
				Observer: observers.NewLoggerObserver(log),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			lr := runner.NewLifecycleRunner(runner.Options{
				Name:    "serve",
				Drainer: runner.DrainFunc(srv.Drain),
				Timeout: cfg.ServerDrainTimeout(),
				Banner:  cmd.ErrOrStderr(),
				Logger:  log,
				Hooks: runner.Hooks{
					// Drain owns shutdown so in-flight requests can finish.
					OnStart: func(ctx context.Context) error { return srv.Start(context.WithoutCancel(ctx)) },
				},
			})
			return lr.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}
