package driven

import "context"

// EmbeddingService maps text to vectors of a fixed size. The same model must
// embed both chunks and questions, so a persisted index records ModelName
// and Dimensions and refuses to load under a different model.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns len(texts) vectors in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string
	Ping(ctx context.Context) error
	Close() error
}
