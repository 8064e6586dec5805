// Package cli is the supportbot command line: ingest, chat, ask and serve.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"supportbot/internal/config"
)

type rootOptions struct {
	configPath string
	cfg        *config.AppConfig
}

// NewRootCmd creates the top-level "supportbot" command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "supportbot",
		Short:         "Retrieval-grounded customer support assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (defaults to ./config.yaml, then ~/.config/supportbot/config.yaml)")

	root.AddCommand(
		newIngestCmd(opts),
		newChatCmd(opts),
		newAskCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}
