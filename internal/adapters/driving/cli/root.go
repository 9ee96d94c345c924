// Package cli implements the finrag command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/core/ports/driving"
	"github.com/custodia-labs/finrag/internal/logger"
)

// version is set at build time.
var version = "dev"

var verbose bool

// Services wired in by main.
var (
	queryService    driving.QueryService
	indexService    driving.IndexService
	documentService driving.DocumentService
	settingsService driving.SettingsService

	// supportsFile reports whether a file can be extracted.
	supportsFile func(filename string) bool

	// uploadDir is where the HTTP API stores uploads.
	uploadDir string
)

// Services holds the ports the commands run against.
type Services struct {
	Query    driving.QueryService
	Index    driving.IndexService
	Document driving.DocumentService
	Settings driving.SettingsService

	// Supports reports whether a file name has a registered extractor.
	Supports func(filename string) bool

	// UploadDir is where uploaded files are stored.
	UploadDir string
}

var rootCmd = &cobra.Command{
	Use:   "finrag",
	Short: "Ask questions about Turkish financial reports",
	Long: `finrag indexes PDF economic reports, budget analyses and bulletins and
answers questions about them with page-level citations.

Index a report, then ask:
  finrag index enflasyon-raporu.pdf
  finrag query "2024 yılı enflasyon beklentisi nedir?"`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline progress to stderr")
}

// SetServices installs the services used by all commands.
func SetServices(s Services) {
	queryService = s.Query
	indexService = s.Index
	documentService = s.Document
	settingsService = s.Settings
	supportsFile = s.Supports
	uploadDir = s.UploadDir
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command. Long-running commands stop when ctx is canceled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
