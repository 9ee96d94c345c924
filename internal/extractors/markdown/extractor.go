// Package markdown extracts text blocks from Markdown reports, such as
// analyst notes exported from a wiki.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles Markdown documents.
type Extractor struct {
	md goldmark.Markdown
}

// New creates a new Markdown extractor. GFM tables are understood.
func New() *Extractor {
	return &Extractor{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Extract parses the file and returns its prose, headings and table rows
// as blocks. Code and raw HTML are skipped. Form feeds separate pages.
func (e *Extractor) Extract(ctx context.Context, documentID, path string) (*driven.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown file: %w", err)
	}

	pages := bytes.Split(data, []byte("\f"))
	out := &driven.Extraction{PageCount: len(pages)}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plain, err := e.plainText(page)
		if err != nil {
			return nil, fmt.Errorf("parse markdown: %w", err)
		}
		out.Blocks = append(out.Blocks, extractors.SplitBlocks(documentID, i+1, plain)...)
	}
	return out, nil
}

// plainText renders src without markup. Blocks are separated by a blank
// line; table rows and tight list items end with a single newline.
func (e *Extractor) plainText(src []byte) (string, error) {
	doc := e.md.Parser().Parse(text.NewReader(src))

	var b bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch n := n.(type) {
			case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.Image:
				return ast.WalkSkipChildren, nil
			case *ast.Text:
				b.Write(n.Segment.Value(src))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteByte('\n')
				}
			case *ast.String:
				b.Write(n.Value)
			case *ast.AutoLink:
				b.Write(n.Label(src))
			}
			return ast.WalkContinue, nil
		}

		switch n.(type) {
		case *east.TableCell:
			b.WriteByte(' ')
		case *east.TableHeader, *east.TableRow, *ast.TextBlock:
			b.WriteByte('\n')
		case *ast.Heading, *ast.Paragraph, *ast.List, *ast.Blockquote, *east.Table:
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	return b.String(), err
}
