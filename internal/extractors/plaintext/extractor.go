// Package plaintext extracts text blocks from .txt files. Form feeds
// separate pages, as in the output of pdftotext.
package plaintext

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles plain text documents.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".txt", ".text"}
}

// Extract reads the file and splits it into pages on form feeds.
func (e *Extractor) Extract(ctx context.Context, documentID, path string) (*driven.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrInvalidInput, path)
	}

	pages := strings.Split(string(data), "\f")
	out := &driven.Extraction{PageCount: len(pages)}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Blocks = append(out.Blocks, extractors.SplitBlocks(documentID, i+1, page)...)
	}
	return out, nil
}
