// Package pdf extracts page-tagged text blocks from PDF files using
// github.com/ledongthuc/pdf.
package pdf

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/extractors"
	"github.com/custodia-labs/finrag/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor reads text-layer PDFs. Image-only pages produce no blocks;
// OCR is out of scope.
type Extractor struct{}

// New creates a new PDF extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".pdf"}
}

// Extract reads every page's text layer. A page that fails to decode is
// skipped with a warning so one bad page does not lose the document.
func (e *Extractor) Extract(ctx context.Context, documentID, path string) (out *driven.Extraction, err error) {
	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: malformed pdf %s: %v", domain.ErrInvalidInput, path, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf %s: %v", domain.ErrInvalidInput, path, err)
	}

	numPages := reader.NumPage()
	out = &driven.Extraction{PageCount: numPages}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("pdf %s: skipping page %d: %v", documentID, i, err)
			continue
		}

		out.Blocks = append(out.Blocks, extractors.SplitBlocks(documentID, i, cleanText(text))...)
	}

	logger.Debug("pdf %s: %d pages, %d blocks", documentID, numPages, len(out.Blocks))
	return out, nil
}

// cleanText drops NUL and other control characters some producers leave
// in the text layer, keeping line breaks and tabs.
func cleanText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case r < 0x20 || r == 0x7f || r == '�':
			return -1
		}
		return r
	}, s)
}
