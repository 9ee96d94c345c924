package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show query statistics and index size",
	Long: `Shows how many questions were answered, how long they took and how
confident the answers were. Counters cover the running process only, so
this is most useful against a long-running 'finrag serve'.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	st := queryService.Stats()

	if statsJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal statistics: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println("[Index]")
	cmd.Printf("  Documents: %d\n", st.IndexedDocuments)
	cmd.Printf("  Chunks: %d\n", st.IndexedChunks)
	cmd.Println()

	cmd.Println("[Queries]")
	cmd.Printf("  Total: %d\n", st.TotalQueries)
	cmd.Printf("  Failed: %d\n", st.FailedQueries)
	cmd.Printf("  Average time: %s\n", st.AverageTime.Round(time.Millisecond))
	cmd.Printf("  Average confidence: %.1f%%\n", st.AverageConfidence*100)
	cmd.Printf("  Confidence: %d high, %d medium, %d low\n", st.ConfidenceHigh, st.ConfidenceMedium, st.ConfidenceLow)
	if st.CacheHits+st.CacheMisses > 0 {
		cmd.Printf("  Answer cache: %d hits, %d misses\n", st.CacheHits, st.CacheMisses)
	}

	if len(st.QueryTypes) > 0 {
		cmd.Println()
		cmd.Println("[Query Types]")
		printCounts(cmd, st.QueryTypes)
	}

	if len(st.ErrorKinds) > 0 {
		cmd.Println()
		cmd.Println("[Errors]")
		printCounts(cmd, st.ErrorKinds)
	}
	return nil
}

// printCounts prints a counter map in key order.
func printCounts[K ~string](cmd *cobra.Command, counts map[K]int) {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		cmd.Printf("  %s: %d\n", k, counts[k])
	}
}
