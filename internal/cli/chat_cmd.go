package cli

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"supportbot/internal/logger"
	"supportbot/internal/tui"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive support chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isInteractive() {
				return errors.New("chat needs an interactive terminal; use \"supportbot ask\" instead")
			}
			cfg := opts.cfg
			// The TUI owns the terminal, so logs go to the file only.
			app, err := NewApp(cfg, logger.NewIsolatedLogger(cfg.Log.FilePath))
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.LoadKnowledge(cmd.Context()); err != nil {
				return err
			}

			m := tui.New(app.Orchestrator, cfg.Assistant.Brand)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}
