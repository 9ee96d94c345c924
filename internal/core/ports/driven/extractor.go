package driven

import (
	"context"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// Extractor turns a stored file into ordered, page-tagged text blocks.
// Structural analysis (tables, OCR, charts) is the extractor's concern;
// the core only sees the resulting blocks.
type Extractor interface {
	// Extensions returns the lower-case file extensions handled, with dot.
	Extensions() []string

	// Extract reads the file at path. Blocks are tagged with documentID.
	// An image-only file returns zero blocks and no error.
	Extract(ctx context.Context, documentID, path string) (*Extraction, error)
}

// Extraction is the output of an Extractor.
type Extraction struct {
	// Blocks are ordered by page, then by position on the page.
	Blocks []domain.TextBlock

	// PageCount is the number of pages in the file.
	PageCount int
}

// ExtractorRegistry selects an extractor by file name.
type ExtractorRegistry interface {
	// Register adds an extractor for its extensions.
	Register(e Extractor)

	// Get returns the extractor for filename, or domain.ErrUnsupportedType.
	Get(filename string) (Extractor, error)
}
