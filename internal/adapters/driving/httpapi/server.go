// Package httpapi serves document upload, question answering and
// statistics over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Config holds HTTP API options.
type Config struct {
	// UploadDir is where uploaded files are stored.
	UploadDir string

	// MaxUploadBytes bounds the request body of an upload.
	MaxUploadBytes int64

	// Supports reports whether a file name can be extracted. Nil accepts all.
	Supports func(filename string) bool
}

// Server is the HTTP API. Uploaded documents are processed in the
// background; Stop waits for that work to finish.
type Server struct {
	mu       sync.Mutex
	ports    *Ports
	cfg      Config
	mux      *http.ServeMux
	markdown goldmark.Markdown

	server   *http.Server
	listener net.Listener
	errChan  chan error

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// NewServer creates an HTTP API server over the given ports.
func NewServer(ports *Ports, cfg Config) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = domain.DefaultMaxUploadBytes
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Server{
		ports:    ports,
		cfg:      cfg,
		mux:      http.NewServeMux(),
		markdown: goldmark.New(),
		errChan:  make(chan error, 1),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/query", s.handleQuery)
	s.mux.HandleFunc("GET /api/query/history", s.handleQueryHistory)
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
}

// Handle mounts an extra handler, such as the MCP endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the root handler with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	return recoverPanics(logRequests(s.mux))
}

// Start listens on addr and serves in the background.
// A port of 0 picks a free port; see Addr.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errChan <- err:
			default:
			}
		}
	}()

	logger.Info("HTTP API listening on %s", listener.Addr())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down and waits for background processing.
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background processing still running; canceling")
		s.bgCancel()
		<-done
	}
	s.bgCancel()
	return err
}

// Run serves on addr until ctx is canceled or the listener fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Start(addr); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-s.errChan:
		_ = s.Stop()
		return err
	}
}

// processAsync extracts and indexes a registered document in the background.
func (s *Server) processAsync(documentID string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		doc, err := s.ports.Index.Process(s.bgCtx, documentID)
		if err != nil {
			logger.Warn("processing %s failed: %v", documentID, err)
			return
		}
		logger.Info("indexed %s: %d pages, %d chunks", doc.Filename, doc.PageCount, doc.ChunkCount)
	}()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, &domain.PipelineError{
					Kind:    domain.KindInternal,
					Message: fmt.Sprintf("panic: %v", rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
