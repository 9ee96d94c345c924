// Package domain defines the core business entities for finrag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded PDF report and its processing status
//   - TextBlock: A page-scoped unit of extracted text
//   - Chunk: A position-traceable retrieval unit with its embedding
//   - QueryResult: The ranked outcome of one retrieval
//   - Answer: The synthesized, confidence-scored response to a question
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
