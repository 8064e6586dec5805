package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"supportbot/internal/dialogue"
	"supportbot/internal/logger"
	"supportbot/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if port != "" {
				cfg.Server.Port = port
			}
			app, err := NewApp(cfg, logger.NewZapLogger(cfg.Log.FilePath, cfg.IsProduction()))
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.LoadKnowledge(ctx); err != nil {
				return err
			}
			store, err := app.SessionStore(ctx)
			if err != nil {
				return err
			}
			srv := server.New(server.Config{
				Port:        cfg.Server.Port,
				CorsOrigins: cfg.Server.CorsOrigins,
			}, dialogue.NewSessions(app.Orchestrator, store), app.Log)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Override the configured listen port")
	return cmd
}
