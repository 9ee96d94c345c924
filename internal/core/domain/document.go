package domain

import (
	"fmt"
	"time"
)

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

// Document lifecycle states.
const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further processing is expected.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// Document represents one uploaded PDF report.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the original file name as uploaded.
	Filename string

	// Path is where the file is stored locally, if known.
	Path string

	// Size is the file size in bytes.
	Size int64

	// PageCount is the number of pages reported by the extractor.
	PageCount int

	// Status is the current processing state.
	Status DocumentStatus

	// ChunkCount is the number of chunks indexed for this document.
	ChunkCount int

	// Error holds the last failure message when Status is failed.
	Error string

	// Warning holds a non-fatal condition, such as an image-only PDF.
	Warning string

	// UploadedAt is when the document was first registered.
	UploadedAt time.Time

	// UpdatedAt is when the document record last changed.
	UpdatedAt time.Time
}

// BlockType classifies an extracted text block.
type BlockType string

// Extracted block types.
const (
	BlockTypeParagraph BlockType = "paragraph"
	BlockTypeTable     BlockType = "table"
	BlockTypeCaption   BlockType = "caption"
)

// TextBlock is one page-scoped unit of extracted text prior to chunking.
type TextBlock struct {
	// DocumentID is the source document.
	DocumentID string

	// Page is the 1-based page number.
	Page int

	// Text is the raw extracted text.
	Text string

	// Type is the block classification.
	Type BlockType
}

// Chunk is the atomic retrieval unit: a bounded slice of a document's
// normalized text together with its embedding.
type Chunk struct {
	// ID is stable for a given document and sequence number.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Seq is the ordinal position within the document.
	Seq int

	// Page is the page on which the chunk starts.
	Page int

	// EndPage is the page on which the chunk ends.
	EndPage int

	// Start and End are rune offsets into the document's normalized text.
	Start int
	End   int

	// PageOffset is the rune offset of Start within its page's text.
	PageOffset int

	// Text is the chunk content.
	Text string

	// Embedding is the vector representation, nil until embedded.
	Embedding []float32
}

// ChunkID derives the stable chunk identifier for a document sequence number.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s#%05d", documentID, seq)
}
