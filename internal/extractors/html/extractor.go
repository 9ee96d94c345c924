// Package html extracts text blocks from saved HTML bulletins and press
// releases. Markup, scripts and styles are dropped; block elements end
// paragraphs and table cells are kept on one line so numeric rows are
// still recognised as tables.
package html

import (
	"context"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles HTML documents.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Extract strips the markup and splits the text into blocks. Elements
// styled with a page break start a new page.
func (e *Extractor) Extract(ctx context.Context, documentID, path string) (*driven.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read html file: %w", err)
	}

	pages := pageBreak.Split(string(data), -1)
	out := &driven.Extraction{PageCount: len(pages)}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Blocks = append(out.Blocks, extractors.SplitBlocks(documentID, i+1, stripHTML(page))...)
	}
	return out, nil
}

var (
	pageBreak     = regexp.MustCompile(`(?i)<[^>]+page-break-(?:before|after)\s*:\s*always[^>]*>`)
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag        = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	comments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	cellEnd       = regexp.MustCompile(`(?i)</t[dh]>`)
	rowEnd        = regexp.MustCompile(`(?i)</tr>`)
	blockElements = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|ul|ol|table|blockquote|pre|section|article|figure|figcaption|caption)(\s[^>]*)?>`)
	lineBreaks    = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// stripHTML removes markup and returns readable text with one blank
// line between blocks.
func stripHTML(content string) string {
	for _, re := range []*regexp.Regexp{scriptTag, styleTag, noscriptTag, headTag, svgTag, comments} {
		content = re.ReplaceAllString(content, "")
	}

	content = cellEnd.ReplaceAllString(content, " ")
	content = rowEnd.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n\n")
	content = lineBreaks.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	var (
		b     strings.Builder
		blank bool
	)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
		if line == "" {
			blank = b.Len() > 0
			continue
		}
		if blank {
			b.WriteString("\n")
			blank = false
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
