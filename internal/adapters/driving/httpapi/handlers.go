package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
	Language   string `json:"language,omitempty"`
	TimeoutMS  int64  `json:"timeout_ms,omitempty"`
}

// QueryResponse is the answer to POST /api/query.
type QueryResponse struct {
	Question     string           `json:"question"`
	Answer       string           `json:"answer"`
	AnswerHTML   string           `json:"answer_html"`
	Confidence   float64          `json:"confidence"`
	Grounded     bool             `json:"grounded"`
	NoSources    bool             `json:"no_sources"`
	QueryType    string           `json:"query_type"`
	DocumentType string           `json:"document_type"`
	Sources      []SourceResponse `json:"sources"`
	ElapsedMS    int64            `json:"elapsed_ms"`
	RetrievalMS  int64            `json:"retrieval_ms"`
	Cached       bool             `json:"cached"`
}

// HistoryEntry is one element of GET /api/query/history.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Sources    int       `json:"sources"`
	DocumentID string    `json:"document_id,omitempty"`
	Language   string    `json:"language"`
	Cached     bool      `json:"cached"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// SourceResponse is one citation.
type SourceResponse struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename,omitempty"`
	ChunkID    string  `json:"chunk_id"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

// DocumentResponse describes an uploaded document.
type DocumentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	Warning    string    `json:"warning,omitempty"`
	Error      string    `json:"error,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	TotalQueries      int            `json:"total_queries"`
	FailedQueries     int            `json:"failed_queries"`
	AverageTimeMS     int64          `json:"average_time_ms"`
	AverageConfidence float64        `json:"average_confidence"`
	QueryTypes        map[string]int `json:"query_types"`
	DocumentTypes     map[string]int `json:"document_types"`
	ErrorKinds        map[string]int `json:"error_kinds"`
	ConfidenceHigh    int            `json:"confidence_high"`
	ConfidenceMedium  int            `json:"confidence_medium"`
	ConfidenceLow     int            `json:"confidence_low"`
	IndexedDocuments  int            `json:"indexed_documents"`
	IndexedChunks     int            `json:"indexed_chunks"`
	CacheHits         int            `json:"cache_hits"`
	CacheMisses       int            `json:"cache_misses"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status           string `json:"status"`
	IndexedDocuments int    `json:"indexed_documents"`
	IndexedChunks    int    `json:"indexed_chunks"`
}

var errServiceUnavailable = &domain.PipelineError{
	Kind:    domain.KindInternal,
	Message: "service not configured",
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.ports.Query.Stats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		IndexedDocuments: st.IndexedDocuments,
		IndexedChunks:    st.IndexedChunks,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse(s.ports.Query.Stats()))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err))
		return
	}

	answer, err := s.ports.Query.Query(r.Context(), domain.QueryRequest{
		Question:   req.Question,
		DocumentID: req.DocumentID,
		TopK:       req.TopK,
		Language:   req.Language,
		Timeout:    time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.queryResponse(answer))
}

// handleQueryHistory serves the newest answered queries, oldest first.
func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	limit := domain.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer, got %q", domain.ErrInvalidInput, raw))
			return
		}
		limit = n
	}

	records := s.ports.Query.History(limit)
	out := make([]HistoryEntry, len(records))
	for i, rec := range records {
		out[i] = HistoryEntry{
			ID:         rec.ID,
			Question:   rec.Question,
			Answer:     rec.Answer,
			Confidence: rec.Confidence,
			Sources:    rec.Sources,
			DocumentID: rec.DocumentID,
			Language:   rec.Language,
			Cached:     rec.Cached,
			ElapsedMS:  rec.Elapsed.Milliseconds(),
			Timestamp:  rec.At,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.ports.Index == nil {
		writeError(w, errServiceUnavailable)
		return
	}

	if r.ContentLength > s.cfg.MaxUploadBytes {
		s.writeTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeTooLarge(w)
			return
		}
		writeError(w, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if s.cfg.Supports != nil && !s.cfg.Supports(name) {
		writeError(w, fmt.Errorf("%w: %w: %s", domain.ErrInvalidInput, domain.ErrUnsupportedType, name))
		return
	}

	path, size, err := s.store(file, name)
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := s.ports.Index.Register(r.Context(), name, path, size)
	if err != nil {
		_ = os.Remove(path)
		writeError(w, err)
		return
	}

	s.processAsync(doc.ID)
	writeJSON(w, http.StatusAccepted, documentResponse(doc))
}

func (s *Server) writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: domain.ErrorReport{
		Kind:    domain.KindInvalidInput,
		Message: fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes),
	}})
}

// store copies an upload into the upload directory under a unique name.
func (s *Server) store(src io.Reader, name string) (string, int64, error) {
	if s.cfg.UploadDir == "" {
		return "", 0, errors.New("upload directory not configured")
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("creating upload directory: %w", err)
	}

	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()[:8]+"_"+name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}

	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("saving upload: %w", err)
	}
	return path, size, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.ports.Document == nil {
		writeError(w, errServiceUnavailable)
		return
	}
	docs, err := s.ports.Document.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]DocumentResponse, len(docs))
	for i := range docs {
		out[i] = documentResponse(&docs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.ports.Document == nil {
		writeError(w, errServiceUnavailable)
		return
	}
	doc, err := s.ports.Document.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if s.ports.Document == nil {
		writeError(w, errServiceUnavailable)
		return
	}
	if err := s.ports.Document.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) queryResponse(answer *domain.Answer) QueryResponse {
	out := QueryResponse{
		Question:     answer.Question,
		Answer:       answer.Text,
		AnswerHTML:   s.renderHTML(answer.Text),
		Confidence:   answer.Confidence,
		Grounded:     answer.Grounded,
		NoSources:    answer.NoSources,
		QueryType:    string(answer.QueryType),
		DocumentType: string(answer.DocumentType),
		Sources:      make([]SourceResponse, len(answer.Sources)),
		ElapsedMS:    answer.Elapsed.Milliseconds(),
		RetrievalMS:  answer.RetrievalElapsed.Milliseconds(),
		Cached:       answer.Cached,
	}
	for i, src := range answer.Sources {
		out.Sources[i] = SourceResponse{
			DocumentID: src.DocumentID,
			Filename:   src.Filename,
			ChunkID:    src.ChunkID,
			Page:       src.Page,
			Score:      src.Score,
			Snippet:    src.Snippet,
		}
	}
	return out
}

// renderHTML converts the markdown answer to HTML. Raw HTML in the
// answer is not passed through.
func (s *Server) renderHTML(text string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func documentResponse(doc *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Size:       doc.Size,
		Status:     string(doc.Status),
		Pages:      doc.PageCount,
		Chunks:     doc.ChunkCount,
		Warning:    doc.Warning,
		Error:      doc.Error,
		UploadedAt: doc.UploadedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func statsResponse(st domain.QueryStats) StatsResponse {
	out := StatsResponse{
		TotalQueries:      st.TotalQueries,
		FailedQueries:     st.FailedQueries,
		AverageTimeMS:     st.AverageTime.Milliseconds(),
		AverageConfidence: st.AverageConfidence,
		QueryTypes:        make(map[string]int, len(st.QueryTypes)),
		DocumentTypes:     make(map[string]int, len(st.DocumentTypes)),
		ErrorKinds:        make(map[string]int, len(st.ErrorKinds)),
		ConfidenceHigh:    st.ConfidenceHigh,
		ConfidenceMedium:  st.ConfidenceMedium,
		ConfidenceLow:     st.ConfidenceLow,
		IndexedDocuments:  st.IndexedDocuments,
		IndexedChunks:     st.IndexedChunks,
		CacheHits:         st.CacheHits,
		CacheMisses:       st.CacheMisses,
	}
	for k, v := range st.QueryTypes {
		out.QueryTypes[string(k)] = v
	}
	for k, v := range st.DocumentTypes {
		out.DocumentTypes[string(k)] = v
	}
	for k, v := range st.ErrorKinds {
		out.ErrorKinds[string(k)] = v
	}
	return out
}
