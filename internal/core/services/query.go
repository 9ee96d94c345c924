package services

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
	"github.com/custodia-labs/finrag/internal/logger"
	"github.com/custodia-labs/finrag/internal/retry"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService answers questions: retrieve, assemble a prompt, complete.
type QueryService struct {
	retriever *Retriever
	llm       driven.LLMService
	assembler *PromptAssembler
	docStore  driven.DocumentStore
	policy    retry.Policy
	settings  domain.AnswerSettings
	generate  driven.GenerateOptions
	stats     *queryStats
	answers   *answerCache
	history   *queryHistory
	newID     func() string
	now       func() time.Time
}

// QueryOption configures a QueryService.
type QueryOption func(*QueryService)

// WithAnswerSettings sets language, confidence weights, context cap and timeouts.
func WithAnswerSettings(s domain.AnswerSettings) QueryOption {
	return func(q *QueryService) { q.settings = s }
}

// WithGenerateOptions sets the completion parameters.
func WithGenerateOptions(opts driven.GenerateOptions) QueryOption {
	return func(q *QueryService) { q.generate = opts }
}

// WithCompletionPolicy sets the retry policy for completion calls.
func WithCompletionPolicy(p retry.Policy) QueryOption {
	return func(q *QueryService) { q.policy = p }
}

// WithDocumentStore enables filenames on citations.
func WithDocumentStore(store driven.DocumentStore) QueryOption {
	return func(q *QueryService) { q.docStore = store }
}

// WithAnswerCache keeps up to size answers for ttl, keyed by normalized
// question, language, document scope and top_k. A size below one turns the
// cache off. Wrap the index the pipeline writes to with WatchIndex and
// InvalidateAnswers so cached answers never outlive the content they cite.
func WithAnswerCache(size int, ttl time.Duration) QueryOption {
	return func(q *QueryService) {
		q.answers = nil
		if size > 0 {
			q.answers = newAnswerCache(size, ttl)
		}
	}
}

// WithHistory keeps the last size answered queries for History.
func WithHistory(size int) QueryOption {
	return func(q *QueryService) {
		q.history = nil
		if size > 0 {
			q.history = newQueryHistory(size)
		}
	}
}

// WithClock replaces the wall clock used for traces.
func WithClock(now func() time.Time) QueryOption {
	return func(q *QueryService) { q.now = now }
}

// NewQueryService creates a query service. llm may be nil, in which
// case every query fails with completion_unavailable.
func NewQueryService(
	retriever *Retriever, llm driven.LLMService, assembler *PromptAssembler, opts ...QueryOption,
) *QueryService {
	q := &QueryService{
		retriever: retriever,
		llm:       llm,
		assembler: assembler,
		policy:    retry.DefaultPolicy(),
		settings:  domain.DefaultAppSettings().Answer,
		generate: driven.GenerateOptions{
			MaxTokens:   domain.DefaultMaxTokens,
			Temperature: domain.DefaultTemperature,
		},
		stats: newQueryStats(),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Query runs one question through the pipeline. Either a complete
// answer or a *domain.PipelineError is returned, never both.
func (s *QueryService) Query(ctx context.Context, req domain.QueryRequest) (answer *domain.Answer, err error) {
	logger.Section("Query")
	trace := domain.NewTraceWithClock(s.now)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("%v", r), "Query pipeline panicked")
			answer = nil
			err = &domain.PipelineError{
				Kind:    domain.KindInternal,
				Stage:   trace.Fail(),
				Message: fmt.Sprintf("panic: %v", r),
			}
		}
		if err != nil {
			s.stats.recordFailure(domain.KindOf(err))
			return
		}
		s.stats.recordAnswer(answer)
		s.remember(req, answer)
	}()

	answer, pe := s.run(ctx, req, trace)
	if pe != nil {
		from := trace.Fail()
		if pe.Stage == "" {
			pe.Stage = from
		}
		logger.Warn("Query failed at %s: %v", pe.Stage, pe)
		return nil, pe
	}
	return answer, nil
}

func (s *QueryService) run(ctx context.Context, req domain.QueryRequest, trace *domain.Trace) (*domain.Answer, *domain.PipelineError) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, &domain.PipelineError{Kind: domain.KindInvalidInput, Message: "question is empty"}
	}
	logger.Debug("Question: %q", question)
	lang := cmp.Or(req.Language, s.settings.Language)

	var key string
	var gen uint64
	if s.answers != nil {
		key = answerKey(question, lang, req.DocumentID, req.TopK)
		var cached *domain.Answer
		var hit bool
		cached, gen, hit = s.answers.get(key)
		s.stats.recordCacheLookup(hit)
		if hit {
			logger.Debug("Answered from cache")
			cached.Elapsed = trace.Elapsed()
			return cached, nil
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.settings.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, pe := s.retriever.retrieve(ctx, question, domain.RetrieveOptions{
		TopK:       req.TopK,
		DocumentID: req.DocumentID,
	}, trace)
	if pe != nil {
		return nil, pe
	}

	if pe := advance(trace, domain.StagePrompting); pe != nil {
		return nil, pe
	}
	prompt, err := s.assembler.Build(question, result.Hits, lang)
	if err != nil {
		return nil, &domain.PipelineError{
			Kind:    domain.KindInternal,
			Stage:   domain.StagePrompting,
			Message: "assemble prompt",
			Err:     err,
		}
	}

	if pe := advance(trace, domain.StageCompleting); pe != nil {
		return nil, pe
	}
	text, pe := s.complete(ctx, prompt.Text)
	if pe != nil {
		return nil, pe
	}

	if pe := advance(trace, domain.StageDone); pe != nil {
		return nil, pe
	}

	answer := &domain.Answer{
		Question:            question,
		QueryType:           prompt.QueryType,
		DocumentType:        prompt.DocumentType,
		RetrievalConfidence: result.Confidence,
		RetrievalElapsed:    result.Elapsed,
		Elapsed:             trace.Elapsed(),
		Stages:              trace.Timings(),
	}
	text = strings.TrimSpace(text)
	if prompt.Grounded {
		answer.Grounded = true
		answer.Confidence = min(result.Confidence*AnswerFactor(text, s.settings.LengthWeight), result.Confidence)
		answer.Text = text + ConfidenceFooter(answer.Confidence)
		answer.Sources = s.sources(ctx, result.Hits[:prompt.ContextHits])
	} else {
		answer.NoSources = true
		answer.Confidence = min(max(s.settings.FallbackConfidence, 0), domain.MaxFallbackConfidence)
		answer.Text = text + FallbackFooter(answer.Confidence)
	}

	logger.Debug("Answered in %s (confidence %.2f, %d sources)", answer.Elapsed, answer.Confidence, len(answer.Sources))
	if s.answers != nil {
		s.answers.put(key, gen, answer)
	}
	return answer, nil
}

// complete makes the single logical completion call under the retry policy.
func (s *QueryService) complete(ctx context.Context, prompt string) (string, *domain.PipelineError) {
	if s.llm == nil {
		return "", &domain.PipelineError{
			Kind:    domain.KindCompletionUnavailable,
			Stage:   domain.StageCompleting,
			Message: "no LLM is configured",
			Err:     domain.ErrLLMUnavailable,
		}
	}

	var text string
	res, err := s.policy.Do(ctx, func(ctx context.Context) error {
		out, err := callWithTimeout(ctx, s.settings.CallTimeout, s.llm.ModelName(),
			func(ctx context.Context) (string, error) {
				return s.llm.Generate(ctx, prompt, s.generate)
			})
		if err != nil {
			logger.Debug("Completion attempt failed: %v", err)
			return err
		}
		if strings.TrimSpace(out) == "" {
			return &domain.ProviderError{Provider: s.llm.ModelName(), Message: "empty completion"}
		}
		text = out
		return nil
	})
	if err != nil {
		return "", collaboratorError(ctx, domain.KindCompletionUnavailable, domain.StageCompleting, res, err, "completion")
	}
	return text, nil
}

// sources builds citations in rank order. Filenames are best effort.
func (s *QueryService) sources(ctx context.Context, hits []domain.ScoredChunk) []domain.Source {
	names := make(map[string]string)
	out := make([]domain.Source, 0, len(hits))
	for _, h := range hits {
		docID := h.Chunk.DocumentID
		name, seen := names[docID]
		if !seen && s.docStore != nil {
			if doc, err := s.docStore.GetDocument(ctx, docID); err == nil {
				name = doc.Filename
			}
			names[docID] = name
		}
		out = append(out, domain.Source{
			DocumentID: docID,
			Filename:   name,
			ChunkID:    h.Chunk.ID,
			Page:       h.Chunk.Page,
			Snippet:    snippet(h.Chunk.Text),
			Score:      h.Score,
		})
	}
	return out
}

// InvalidateAnswers empties the answer cache. Answers still being computed
// when it runs are not cached.
func (s *QueryService) InvalidateAnswers() {
	if s.answers != nil {
		s.answers.invalidate()
	}
}

// History returns up to limit of the most recent answered queries, oldest
// first. A limit of zero or less returns every kept record.
func (s *QueryService) History(limit int) []domain.QueryRecord {
	if s.history == nil {
		return []domain.QueryRecord{}
	}
	return s.history.last(limit)
}

func (s *QueryService) remember(req domain.QueryRequest, a *domain.Answer) {
	if s.history == nil {
		return
	}
	s.history.add(domain.QueryRecord{
		ID:         s.newID(),
		Question:   a.Question,
		Answer:     a.Text,
		Confidence: a.Confidence,
		Sources:    len(a.Sources),
		DocumentID: req.DocumentID,
		Language:   cmp.Or(req.Language, s.settings.Language),
		Cached:     a.Cached,
		Elapsed:    a.Elapsed,
		At:         s.now(),
	})
}

// Stats returns aggregate query statistics since start.
func (s *QueryService) Stats() domain.QueryStats {
	st := s.stats.snapshot()
	if idx := s.retriever.Index(); idx != nil {
		st.IndexedChunks = idx.Len()
		st.IndexedDocuments = len(idx.Documents())
	}
	return st
}
