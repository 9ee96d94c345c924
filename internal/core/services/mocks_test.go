package services

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	vecmem "github.com/custodia-labs/finrag/internal/adapters/driven/vectorindex/memory"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/retry"
)

// --- Mock implementations ---

// mockEmbedder returns queryVec for Embed and one vector per text for
// EmbedBatch. Queued errors are returned first, one per call.
type mockEmbedder struct {
	mu         sync.Mutex
	dim        int
	queryVec   []float32
	errs       []error
	calls      int
	batchCalls int
	batchSizes []int
	wrongDim   bool
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dim: 2, queryVec: []float32{1, 0}}
}

func (m *mockEmbedder) nextErr() error {
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	return append([]float32(nil), m.queryVec...), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		if m.wrongDim {
			out[i] = []float32{1, 0, 0}
			continue
		}
		out[i] = []float32{1, float32(i + 1)}
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int             { return m.dim }
func (m *mockEmbedder) ModelName() string           { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                { return nil }

func (m *mockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockLLM returns reply after any queued errors. When hang is set it
// ignores its context and blocks until hang is closed.
type mockLLM struct {
	mu      sync.Mutex
	reply   string
	errs    []error
	calls   int
	prompts []string
	hang    chan struct{}
}

func (m *mockLLM) Generate(_ context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	hang := m.hang
	var err error
	if len(m.errs) > 0 {
		err = m.errs[0]
		m.errs = m.errs[1:]
	}
	reply := m.reply
	m.mu.Unlock()

	if hang != nil {
		<-hang
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (m *mockLLM) ModelName() string           { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                { return nil }

func (m *mockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// staticPrompts is an in-memory prompt store.
type staticPrompts map[string]string

func (p staticPrompts) Load(name string) (string, error) {
	t, ok := p[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return t, nil
}

func (p staticPrompts) Reload() {}

func testPrompts() staticPrompts {
	return staticPrompts{
		driven.PromptSystem:   "SİSTEM",
		driven.PromptGrounded: "%s\n%s\nBAĞLAM:\n%s\nSORU: %s\nDİL: %s",
		driven.PromptFallback: "GENEL SORU: %s\nDİL: %s",
	}
}

// --- Helpers ---

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// scoredChunk builds a chunk whose cosine similarity to the query
// vector {1, 0} is exactly score.
func scoredChunk(doc string, seq, page int, score float64, text string) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(doc, seq),
		DocumentID: doc,
		Seq:        seq,
		Page:       page,
		EndPage:    page,
		Start:      seq * 100,
		End:        seq*100 + len([]rune(text)),
		Text:       text,
		Embedding:  []float32{float32(score), float32(math.Sqrt(1 - score*score))},
	}
}

func newIndex(t *testing.T, chunks ...domain.Chunk) *vecmem.Index {
	t.Helper()
	idx := vecmem.New(2)
	if len(chunks) > 0 {
		require.NoError(t, idx.Add(context.Background(), chunks))
	}
	return idx
}

func newTestQueryService(
	t *testing.T, embedder driven.EmbeddingService, llm driven.LLMService, idx driven.VectorIndex, opts ...QueryOption,
) *QueryService {
	t.Helper()
	retriever := NewRetriever(embedder, idx, WithRetrieverPolicy(fastPolicy(3)))
	base := []QueryOption{WithCompletionPolicy(fastPolicy(3))}
	return NewQueryService(retriever, llm, NewPromptAssembler(testPrompts(), 0), append(base, opts...)...)
}
