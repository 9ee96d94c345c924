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
	queryTopK     int
	queryDocument string
	queryLanguage string
	queryTimeout  time.Duration
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about the indexed reports",
	Long: `Retrieves the most relevant passages from the indexed reports and asks
the configured LLM to answer from them. The answer ends with a confidence
footer and lists the cited pages.

When nothing relevant is indexed the answer is marked as having no sources
and its confidence stays low.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of passages to retrieve (0 = configured default)")
	queryCmd.Flags().StringVarP(&queryDocument, "document", "d", "", "restrict retrieval to one document ID")
	queryCmd.Flags().StringVarP(&queryLanguage, "lang", "l", "", "answer language, such as tr or en")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 0, "overall deadline (0 = configured default)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	answer, err := queryService.Query(cmd.Context(), domain.QueryRequest{
		Question:   args[0],
		DocumentID: queryDocument,
		TopK:       queryTopK,
		Language:   queryLanguage,
		Timeout:    queryTimeout,
	})
	if err != nil {
		return reportFailure(cmd, err, queryJSON)
	}

	if queryJSON {
		return outputQueryJSON(cmd, answer)
	}
	outputAnswer(cmd, answer)
	return nil
}

// queryOutput is the JSON form of an answer.
type queryOutput struct {
	Question   string          `json:"question"`
	Answer     string          `json:"answer"`
	Confidence float64         `json:"confidence"`
	Grounded   bool            `json:"grounded"`
	NoSources  bool            `json:"no_sources"`
	QueryType  string          `json:"query_type"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Cached     bool            `json:"cached"`
	Sources    []domain.Source `json:"sources"`
}

func outputQueryJSON(cmd *cobra.Command, answer *domain.Answer) error {
	data, err := json.MarshalIndent(queryOutput{
		Question:   answer.Question,
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		Grounded:   answer.Grounded,
		NoSources:  answer.NoSources,
		QueryType:  string(answer.QueryType),
		ElapsedMS:  answer.Elapsed.Milliseconds(),
		Cached:     answer.Cached,
		Sources:    answer.Sources,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswer(cmd *cobra.Command, answer *domain.Answer) {
	cmd.Println(answer.Text)
	cmd.Println()

	if len(answer.Sources) == 0 {
		cmd.Println("No sources.")
		return
	}

	cmd.Println("Sources:")
	for i, src := range answer.Sources {
		name := src.Filename
		if name == "" {
			name = src.DocumentID
		}
		cmd.Printf("  [%d] %s, page %d (%.3f)\n", i+1, name, src.Page, src.Score)
	}
	if answer.Cached {
		cmd.Printf("\n%s, cached\n", answer.QueryType)
		return
	}
	cmd.Printf("\n%s in %s\n", answer.QueryType, answer.Elapsed.Round(time.Millisecond))
}
