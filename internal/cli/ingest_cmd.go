package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"supportbot/internal/chunker"
	"supportbot/internal/logger"
	"supportbot/internal/service"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Chunk and embed the FAQ, product and policy sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			log := logger.NewZapLogger(cfg.Log.FilePath, cfg.IsProduction())
			app, err := NewApp(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			k := cfg.Knowledge
			src, err := chunker.LoadSources(k.FAQsPath, k.ProductsPath, k.PoliciesPath)
			if err != nil {
				return fmt.Errorf("load knowledge sources: %w", err)
			}
			n, err := app.Knowledge.Ingest(cmd.Context(), src, service.Paths{
				Chunks:   k.ChunksPath,
				Embedded: k.EmbeddedChunksPath,
			})
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks into %s\n", n, k.EmbeddedChunksPath)
			return nil
		},
	}
}
