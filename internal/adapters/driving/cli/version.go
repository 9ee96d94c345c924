package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the finrag version and configured models",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("finrag version %s (%s)\n", version, runtime.Version())
		if settingsService == nil {
			return
		}
		s, err := settingsService.Get()
		if err != nil {
			return
		}
		cmd.Printf("embedding: %s\n", modelLine(s.Embedding.Provider, s.Embedding.Model))
		cmd.Printf("llm:       %s\n", modelLine(s.LLM.Provider, s.LLM.Model))
	},
}

func modelLine(provider domain.AIProvider, model string) string {
	if provider == "" {
		return "not configured"
	}
	return string(provider) + "/" + model
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
