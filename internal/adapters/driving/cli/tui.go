package cli

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui"
)

var tuiScope string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Ask questions in the interactive terminal UI",
	Long: `Opens the interactive terminal user interface.

Questions are answered from the indexed reports with the cited pages listed
under each answer. Scope questions to one report from the Documents screen,
or start scoped with --scope.

Controls:
  ↑/k ↓/j   move through sources and lists
  enter     ask or select
  n         new question
  s         scope to the highlighted report
  x         ask all reports again
  esc       back
  q         quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().StringVar(&tuiScope, "scope", "", "start with questions limited to this document ID")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) (err error) {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	app, err := tui.NewApp(&tui.Ports{
		Query:    queryService,
		Document: documentService,
		Settings: settingsService,
	})
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	app.WithContext(cmd.Context())

	if tuiScope != "" {
		if documentService == nil {
			return errors.New("document service not configured")
		}
		doc, err := documentService.Get(cmd.Context(), tuiScope)
		if err != nil {
			return fmt.Errorf("scope %s: %w", tuiScope, err)
		}
		app.Scope(doc.ID, doc.Filename)
	}

	// A panic inside bubbletea would otherwise leave the terminal in raw mode
	// with the trace lost behind the alt screen.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tui panic: %v\n%s", r, debug.Stack())
		}
	}()
	return app.Run()
}
