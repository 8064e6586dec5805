package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"supportbot/internal/dialogue"
	"supportbot/internal/logger"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   `ask "<question>"`,
		Short: "Answer a single question and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			app, err := NewApp(cfg, logger.NewIsolatedLogger(cfg.Log.FilePath))
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.LoadKnowledge(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			streamed := false
			reply, _ := app.Orchestrator.Respond(cmd.Context(), dialogue.State{}, args[0], nil, func(delta string) {
				streamed = true
				fmt.Fprint(out, delta)
			})
			if reply.Failed {
				return errors.New(reply.Text)
			}
			if !streamed {
				fmt.Fprint(out, reply.Text)
			}
			fmt.Fprintln(out)
			if reply.FallbackTriggered {
				fmt.Fprintln(cmd.ErrOrStderr(), "Run \"supportbot chat\" to leave your email and question for the support team.")
			}
			return nil
		},
	}
}
