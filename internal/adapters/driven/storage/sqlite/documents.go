package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*documentStore)(nil)

type documentStore struct {
	db *sql.DB
}

var documentColumns = []string{
	"id", "filename", "path", "size", "page_count", "status",
	"chunk_count", "error", "warning", "uploaded_at", "updated_at",
}

var (
	selectDocument = `SELECT ` + strings.Join(documentColumns, ", ") + ` FROM documents`

	// upsertDocument never rewrites uploaded_at.
	upsertDocument = func() string {
		var set []string
		for _, c := range documentColumns[1:] {
			if c != "uploaded_at" {
				set = append(set, c+" = excluded."+c)
			}
		}
		return `INSERT INTO documents (` + strings.Join(documentColumns, ", ") + `)
		VALUES (?` + strings.Repeat(", ?", len(documentColumns)-1) + `)
		ON CONFLICT(id) DO UPDATE SET ` + strings.Join(set, ", ")
	}()
)

// SaveDocument inserts or updates doc, stamping missing timestamps.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, upsertDocument,
		doc.ID, doc.Filename, doc.Path, doc.Size, doc.PageCount, string(doc.Status),
		doc.ChunkCount, doc.Error, doc.Warning, doc.UploadedAt.UTC(), doc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("getting document %s: %w", id, err)
	}
	return doc, nil
}

func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, selectDocument+` ORDER BY uploaded_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument returns domain.ErrNotFound when no row matched.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *documentStore) Close() error { return nil }

func scanDocument(row interface{ Scan(...any) error }) (*domain.Document, error) {
	var d domain.Document
	var status string
	err := row.Scan(&d.ID, &d.Filename, &d.Path, &d.Size, &d.PageCount, &status,
		&d.ChunkCount, &d.Error, &d.Warning, &d.UploadedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DocumentStatus(status)
	return &d, nil
}
