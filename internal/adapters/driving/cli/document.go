package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage indexed documents",
	Long:  `List, view, or remove uploaded documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentRemoveCmd = &cobra.Command{
	Use:   "remove [doc-id]",
	Short: "Remove a document and its chunks",
	Long: `Removes the document record and every chunk indexed for it. Files that
were uploaded through the HTTP API are deleted as well; files indexed from
their own location are left in place.

Documents that are still being processed cannot be removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentRemove,
}

var documentJSON bool

func init() {
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "output documents as JSON")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentRemoveCmd)
	rootCmd.AddCommand(documentCmd)
}

// documentOutput is the JSON form of a document.
type documentOutput struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Warning    string `json:"warning,omitempty"`
	Error      string `json:"error,omitempty"`
	UploadedAt string `json:"uploaded_at"`
}

func toDocumentOutput(doc *domain.Document) documentOutput {
	return documentOutput{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Status:     string(doc.Status),
		Pages:      doc.PageCount,
		Chunks:     doc.ChunkCount,
		Warning:    doc.Warning,
		Error:      doc.Error,
		UploadedAt: doc.UploadedAt.Format(time.RFC3339),
	}
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if documentJSON {
		out := make([]documentOutput, len(docs))
		for i := range docs {
			out[i] = toDocumentOutput(&docs[i])
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	cmd.Println("Documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    File: %s\n", docs[i].Filename)
		cmd.Printf("    Status: %s (%d pages, %d chunks)\n", docs[i].Status, docs[i].PageCount, docs[i].ChunkCount)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("document not found: %s", args[0])
		}
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n", doc.ID)
	cmd.Printf("  File: %s\n", doc.Filename)
	if doc.Path != "" {
		cmd.Printf("  Path: %s\n", doc.Path)
	}
	cmd.Printf("  Size: %d bytes\n", doc.Size)
	cmd.Printf("  Status: %s\n", doc.Status)
	cmd.Printf("  Pages: %d\n", doc.PageCount)
	cmd.Printf("  Chunks: %d\n", doc.ChunkCount)
	if doc.Warning != "" {
		cmd.Printf("  Warning: %s\n", doc.Warning)
	}
	if doc.Error != "" {
		cmd.Printf("  Error: %s\n", doc.Error)
	}
	cmd.Printf("  Uploaded: %s\n", doc.UploadedAt.Format(time.RFC3339))
	return nil
}

func runDocumentRemove(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Remove(cmd.Context(), args[0]); err != nil {
		return reportFailure(cmd, err, false)
	}

	cmd.Printf("Removed document %s\n", args[0])
	return nil
}
