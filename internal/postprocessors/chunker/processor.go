// Package chunker provides a fixed-size, overlapping text chunker.
//
// Blocks are normalized (Unicode NFC, whitespace runs collapsed) and
// concatenated in page order before windowing, so chunk offsets always
// point into one canonical text per document. Sizes are counted in runes.
package chunker

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

const (
	blockSeparator = "\n"
	pageMarker     = "\n\n"
)

// Processor splits document blocks into fixed-size chunks.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Size returns the configured chunk size.
func (p *Processor) Size() int { return p.chunkSize }

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int { return p.overlap }

// PageSpan locates one page inside a Layout.
type PageSpan struct {
	Page  int
	Start int
	End   int
}

// Layout is the normalized, concatenated text of one document.
type Layout struct {
	Text  []rune
	Pages []PageSpan
}

// Span returns the page span containing offset. Offsets that fall on a
// page marker belong to the following page.
func (l Layout) Span(offset int) (PageSpan, bool) {
	i := sort.Search(len(l.Pages), func(i int) bool {
		return l.Pages[i].End > offset
	})
	if i == len(l.Pages) {
		return PageSpan{}, false
	}
	return l.Pages[i], true
}

// Normalize applies NFC and collapses every whitespace run to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Compose normalizes and concatenates blocks in page order.
// Blocks on one page are joined by a newline; pages by a blank line.
func Compose(blocks []domain.TextBlock) Layout {
	ordered := make([]domain.TextBlock, len(blocks))
	copy(ordered, blocks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Page < ordered[j].Page
	})

	var (
		b      strings.Builder
		n      int
		layout Layout
	)
	write := func(s string) {
		b.WriteString(s)
		n += len([]rune(s))
	}

	for _, blk := range ordered {
		text := Normalize(blk.Text)
		if text == "" {
			continue
		}
		last := len(layout.Pages) - 1
		if last >= 0 && layout.Pages[last].Page == blk.Page {
			write(blockSeparator)
		} else {
			if n > 0 {
				write(pageMarker)
			}
			layout.Pages = append(layout.Pages, PageSpan{Page: blk.Page, Start: n})
			last = len(layout.Pages) - 1
		}
		write(text)
		layout.Pages[last].End = n
	}

	layout.Text = []rune(b.String())
	return layout
}

// Chunk splits blocks into overlapping windows. It is deterministic:
// identical input always yields identical chunks and offsets.
func (p *Processor) Chunk(documentID string, blocks []domain.TextBlock) []domain.Chunk {
	layout := Compose(blocks)
	text := layout.Text
	total := len(text)
	if total == 0 {
		return nil
	}

	step := p.chunkSize - p.overlap
	chunks := make([]domain.Chunk, 0, total/step+1)

	for start := 0; start < total; start += step {
		end := start + p.chunkSize
		if end > total {
			end = total
		}

		content := string(text[start:end])
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, newChunk(documentID, len(chunks), layout, start, end, content))
		}

		if end == total {
			break
		}
	}

	return chunks
}

func newChunk(documentID string, seq int, layout Layout, start, end int, content string) domain.Chunk {
	c := domain.Chunk{
		ID:         domain.ChunkID(documentID, seq),
		DocumentID: documentID,
		Seq:        seq,
		Start:      start,
		End:        end,
		Text:       content,
	}
	if span, ok := layout.Span(start); ok {
		c.Page = span.Page
		if start > span.Start {
			c.PageOffset = start - span.Start
		}
	}
	c.EndPage = c.Page
	if i := sort.Search(len(layout.Pages), func(i int) bool {
		return layout.Pages[i].Start >= end
	}); i > 0 {
		c.EndPage = layout.Pages[i-1].Page
	}
	return c
}
