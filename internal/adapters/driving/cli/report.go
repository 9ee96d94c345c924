package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// errReported is returned after a failure has already been printed, so
// main exits non-zero without printing it twice.
var errReported = errors.New("operation failed")

// IsReported reports whether err was already printed by a command.
func IsReported(err error) bool {
	return errors.Is(err, errReported)
}

// reportFailure prints the error report for a failed operation, as JSON
// on stdout when asJSON is set, and returns errReported.
func reportFailure(cmd *cobra.Command, err error, asJSON bool) error {
	report := domain.ReportOf(err)

	if asJSON {
		data, merr := json.MarshalIndent(struct {
			Error domain.ErrorReport `json:"error"`
		}{report}, "", "  ")
		if merr != nil {
			return err
		}
		cmd.Println(string(data))
		return errReported
	}

	cmd.PrintErrf("Error (%s): %s\n", report.Kind, report.Message)
	if report.Stage != "" {
		cmd.PrintErrf("  Stage: %s\n", report.Stage)
	}
	if report.Attempts > 0 {
		cmd.PrintErrf("  Attempts: %d\n", report.Attempts)
	}
	if report.Retryable {
		cmd.PrintErrln("  This is likely temporary; try again shortly.")
	}
	return errReported
}
