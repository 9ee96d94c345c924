package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

var indexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Extract and index report files",
	Long: `Extracts text from each PDF or text file, splits it into overlapping
chunks, embeds them and stores them in the vector index.

Directories are searched recursively for supported files. Hidden files
are skipped. Indexing the same file again adds it as a new document;
remove the old one first with 'finrag document remove'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output indexed documents as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	paths, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported files found")
	}

	var (
		indexed []documentOutput
		failed  int
	)
	for _, path := range paths {
		doc, err := indexService.IngestFile(cmd.Context(), path)
		if err != nil {
			failed++
			cmd.PrintErrf("%s: ", filepath.Base(path))
			_ = reportFailure(cmd, err, false)
			if cmd.Context().Err() != nil {
				break
			}
			continue
		}
		indexed = append(indexed, toDocumentOutput(doc))
		if !indexJSON {
			printIndexed(cmd, doc)
		}
	}

	if indexJSON {
		data, err := json.MarshalIndent(indexed, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed: %w", failed, len(paths), errReported)
	}
	return nil
}

func printIndexed(cmd *cobra.Command, doc *domain.Document) {
	cmd.Printf("Indexed %s (%s): %d pages, %d chunks\n", doc.Filename, doc.ID, doc.PageCount, doc.ChunkCount)
	if doc.Warning != "" {
		cmd.Printf("  Warning: %s\n", doc.Warning)
	}
}

// expandPaths resolves directories to the supported files beneath them.
// Files named explicitly are passed through so unsupported types are
// reported rather than silently skipped.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			hidden := strings.HasPrefix(d.Name(), ".") && path != arg
			if d.IsDir() {
				if hidden {
					return filepath.SkipDir
				}
				return nil
			}
			if hidden || (supportsFile != nil && !supportsFile(path)) {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return paths, nil
}
