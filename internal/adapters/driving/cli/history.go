package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently answered questions",
	Long: `Lists the most recent answered questions, oldest first. History is kept
in memory by the running process, so this is most useful from the TUI or
against a long-running 'finrag serve' (GET /api/query/history).`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", domain.DefaultHistoryLimit, "number of entries to show (0 = all kept)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output history as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}
	if historyLimit < 0 {
		return fmt.Errorf("invalid limit %d", historyLimit)
	}

	records := queryService.History(historyLimit)

	if historyJSON {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		cmd.Println("No questions answered yet.")
		return nil
	}
	for _, r := range records {
		mark := ""
		if r.Cached {
			mark = ", cached"
		}
		cmd.Printf("%s  %s\n", r.At.Format(time.DateTime), r.Question)
		cmd.Printf("  %.1f%% confidence, %d sources, %s%s\n",
			r.Confidence*100, r.Sources, r.Elapsed.Round(time.Millisecond), mark)
	}
	return nil
}
