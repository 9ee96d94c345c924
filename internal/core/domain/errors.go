package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a file type no extractor handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidTransition indicates an out-of-order pipeline stage change.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// Provider Errors.

	// ErrAuthInvalid indicates the provider rejected the credentials.
	// Retrying will not help; the user must reconfigure.
	ErrAuthInvalid = errors.New("authentication invalid")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderUnavailable indicates a transient provider or network failure.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// Pipeline Errors.

	// ErrExtractionEmpty indicates a document yielded no usable text.
	ErrExtractionEmpty = errors.New("extraction produced no text")

	// ErrEmbeddingFailure indicates the embedder failed after bounded retries.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrRetrievalUnavailable indicates search could not be performed at all.
	// It is distinct from a search that found nothing.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrCompletionUnavailable indicates the LLM failed after bounded retries.
	ErrCompletionUnavailable = errors.New("completion unavailable")

	// ErrIndexCorrupt indicates vectors and metadata disagree on load.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrTimeout indicates the caller's deadline passed.
	ErrTimeout = errors.New("timeout")

	// ErrCanceled indicates the caller abandoned the operation.
	ErrCanceled = errors.New("canceled")

	// ErrIndexingInProgress indicates the document is already being processed.
	ErrIndexingInProgress = errors.New("indexing in progress")
)

// ErrorKind is the machine-readable category surfaced at operation boundaries.
type ErrorKind string

// Error kinds.
const (
	KindExtractionEmpty       ErrorKind = "extraction_empty"
	KindEmbeddingFailure      ErrorKind = "embedding_failure"
	KindRetrievalUnavailable  ErrorKind = "retrieval_unavailable"
	KindCompletionUnavailable ErrorKind = "completion_unavailable"
	KindIndexCorrupt          ErrorKind = "index_corrupt"
	KindTimeout               ErrorKind = "timeout"
	KindCanceled              ErrorKind = "canceled"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindNotFound              ErrorKind = "not_found"
	KindInProgress            ErrorKind = "in_progress"
	KindInternal              ErrorKind = "internal"
)

var kindSentinels = map[ErrorKind]error{
	KindExtractionEmpty:       ErrExtractionEmpty,
	KindEmbeddingFailure:      ErrEmbeddingFailure,
	KindRetrievalUnavailable:  ErrRetrievalUnavailable,
	KindCompletionUnavailable: ErrCompletionUnavailable,
	KindIndexCorrupt:          ErrIndexCorrupt,
	KindTimeout:               ErrTimeout,
	KindCanceled:              ErrCanceled,
	KindInvalidInput:          ErrInvalidInput,
	KindNotFound:              ErrNotFound,
	KindInProgress:            ErrIndexingInProgress,
}

// Sentinel returns the sentinel error matching the kind, or nil.
func (k ErrorKind) Sentinel() error {
	return kindSentinels[k]
}

// PipelineError is the structured failure returned by the query and
// indexing operations. Callers switch on Kind; Message is for humans.
type PipelineError struct {
	// Kind is the error category.
	Kind ErrorKind

	// Stage is where the failure originated, if it happened inside a query.
	Stage Stage

	// Attempts is how many times the failing collaborator was called.
	Attempts int

	// Retryable reports whether the caller may try again later.
	Retryable bool

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error kind.
func (e *PipelineError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && s == target
}

// KindOf returns the kind of err. Unclassified errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCanceled):
		return KindCanceled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrIndexingInProgress):
		return KindInProgress
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// AsPipelineError converts err into a *PipelineError, keeping an
// existing one untouched.
func AsPipelineError(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	kind := KindOf(err)
	return &PipelineError{
		Kind:      kind,
		Retryable: kind == KindTimeout,
		Message:   describeKind(kind),
		Err:       err,
	}
}

// ErrorReport is the flat form of a failure shown to API, MCP and CLI users.
type ErrorReport struct {
	Kind      ErrorKind `json:"kind"`
	Stage     Stage     `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Attempts  int       `json:"attempts,omitempty"`
}

// ReportOf flattens err for display.
func ReportOf(err error) ErrorReport {
	pe := AsPipelineError(err)
	if pe == nil {
		return ErrorReport{}
	}
	return ErrorReport{
		Kind:      pe.Kind,
		Stage:     pe.Stage,
		Message:   pe.Error(),
		Retryable: pe.Retryable,
		Attempts:  pe.Attempts,
	}
}

func describeKind(kind ErrorKind) string {
	switch kind {
	case KindTimeout:
		return "the operation did not finish before its deadline"
	case KindCanceled:
		return "the operation was canceled"
	case KindNotFound:
		return "the requested item does not exist"
	case KindInvalidInput:
		return "the request is invalid"
	case KindInProgress:
		return "the document is already being processed"
	case KindIndexCorrupt:
		return "the stored index did not match its metadata"
	default:
		return ""
	}
}

// ProviderError is a classified failure from an AI provider call.
type ProviderError struct {
	// Provider names the backend, such as "openai".
	Provider string

	// StatusCode is the HTTP status, or zero for network failures.
	StatusCode int

	// Message is the provider's error text.
	Message string

	// RetryAfter is the server-suggested wait, if any.
	RetryAfter time.Duration

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
		}
		return fmt.Sprintf("%s: request failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap returns the transport error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is classifies the status into the provider sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrAuthInvalid:
		return e.IsAuth()
	case ErrRateLimited:
		return e.StatusCode == 429
	case ErrProviderUnavailable:
		return e.StatusCode == 0 || e.StatusCode == 408 || e.StatusCode >= 500
	}
	return false
}

// IsAuth reports whether the provider rejected the credentials.
func (e *ProviderError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// Retryable reports whether a later attempt may succeed.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth another attempt.
// Context errors, auth failures, and invalid input are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	if errors.Is(err, ErrAuthInvalid) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDimensionMismatch) || errors.Is(err, ErrLLMUnavailable) ||
		errors.Is(err, ErrEmbeddingUnavailable) {
		return false
	}
	return true
}
