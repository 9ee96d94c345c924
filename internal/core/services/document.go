package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
	"github.com/custodia-labs/finrag/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages uploaded documents.
type DocumentService struct {
	docStore    driven.DocumentStore
	vectorIndex driven.VectorIndex
	locks       *DocumentLocks
	uploadDir   string
}

// NewDocumentService creates a new document service. Without a vector
// index the service can list and read documents but refuses to remove them.
func NewDocumentService(docStore driven.DocumentStore, vectorIndex driven.VectorIndex) *DocumentService {
	return &DocumentService{
		docStore:    docStore,
		vectorIndex: vectorIndex,
		locks:       NewDocumentLocks(),
	}
}

// SetUploadDir makes Remove also delete stored files under dir.
// Files outside dir, such as ingested local paths, are never touched.
func (s *DocumentService) SetUploadDir(dir string) {
	s.uploadDir = dir
}

// ShareLocks makes Remove wait on the same per-document locks as the
// IndexService that indexes into the same store.
func (s *DocumentService) ShareLocks(locks *DocumentLocks) {
	if locks != nil {
		s.locks = locks
	}
}

// List returns all documents, newest first.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docStore.ListDocuments(ctx)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	return s.docStore.GetDocument(ctx, documentID)
}

// Remove deletes a document and its chunks. A document that is being
// processed cannot be removed until processing finishes.
func (s *DocumentService) Remove(ctx context.Context, documentID string) error {
	unlock, ok := s.locks.TryLock(documentID)
	if !ok {
		return fmt.Errorf("remove %s: %w", documentID, domain.ErrIndexingInProgress)
	}
	defer unlock()

	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}
	// Another finrag process may be indexing it.
	if doc.Status == domain.DocumentStatusProcessing {
		return fmt.Errorf("remove %s: %w", documentID, domain.ErrIndexingInProgress)
	}
	if s.vectorIndex == nil {
		return fmt.Errorf("remove %s: %w: its chunks cannot be deleted, so the document is kept",
			documentID, domain.ErrVectorIndexUnavailable)
	}

	removed, err := s.vectorIndex.RemoveDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("remove chunks: %w", err)
	}
	if err := s.vectorIndex.Save(ctx); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	logger.Debug("Removed %d chunks for document %s", removed, documentID)

	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if s.ownsFile(doc.Path) {
		if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Could not delete stored file %s: %v", doc.Path, err)
		}
	}
	return nil
}

func (s *DocumentService) ownsFile(path string) bool {
	if s.uploadDir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(s.uploadDir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
