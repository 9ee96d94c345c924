// Command finrag indexes Turkish financial reports and answers questions
// about them with page-level citations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/finrag/internal/adapters/driven/ai"
	"github.com/custodia-labs/finrag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/finrag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/finrag/internal/adapters/driving/cli"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/core/services"
	"github.com/custodia-labs/finrag/internal/extractors"
	"github.com/custodia-labs/finrag/internal/extractors/html"
	"github.com/custodia-labs/finrag/internal/extractors/markdown"
	"github.com/custodia-labs/finrag/internal/extractors/pdf"
	"github.com/custodia-labs/finrag/internal/extractors/plaintext"
	"github.com/custodia-labs/finrag/internal/logger"
	"github.com/custodia-labs/finrag/internal/postprocessors/chunker"
	"github.com/custodia-labs/finrag/internal/retry"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)

	configDir := os.Getenv("FINRAG_HOME")
	if configDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		configDir = dir
	}

	if err := file.LoadDotEnv(".env", filepath.Join(configDir, ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())

	dataDir := filepath.Join(configDir, "data")
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()
	docStore := store.DocumentStore()

	registry := extractors.NewRegistry(pdf.New(), plaintext.New(), html.New(), markdown.New())
	uploadDir := filepath.Join(dataDir, "uploads")

	svcs := cli.Services{
		Settings:  settingsService,
		Supports:  registry.Supports,
		UploadDir: uploadDir,
	}

	// A broken provider configuration must not stop the settings and
	// document commands, so pipeline services are only wired on success.
	if cleanup, err := wirePipeline(ctx, &svcs, settingsService, docStore, registry, configDir, dataDir); err != nil {
		logger.Warn("pipeline unavailable: %v", err)
		defer wireDocuments(ctx, &svcs, settingsService, docStore, dataDir)()
	} else {
		defer cleanup()
	}

	cli.SetServices(svcs)

	if err := cli.Execute(ctx); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// wirePipeline builds the query and index services from the stored
// settings and installs them into svcs.
func wirePipeline(
	ctx context.Context,
	svcs *cli.Services,
	settingsService *services.SettingsService,
	docStore driven.DocumentStore,
	registry *extractors.Registry,
	configDir, dataDir string,
) (func(), error) {
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	result, err := ai.Initialise(ctx, settings, ai.Options{DataDir: dataDir})
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		logger.Warn("%s", w)
	}

	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		result.Close()
		return nil, err
	}

	policy := retry.FromSettings(settings.Retry)

	retriever := services.NewRetriever(result.EmbeddingService, result.VectorIndex,
		services.WithRetrievalSettings(settings.Retrieval),
		services.WithRetrieverPolicy(policy),
		services.WithEmbedTimeout(settings.Answer.CallTimeout),
	)

	queries := services.NewQueryService(retriever, result.LLMService,
		services.NewPromptAssembler(prompts, settings.Answer.MaxContextRunes),
		services.WithAnswerSettings(settings.Answer),
		services.WithGenerateOptions(driven.GenerateOptions{
			MaxTokens:   settings.LLM.MaxTokens,
			Temperature: settings.LLM.Temperature,
		}),
		services.WithCompletionPolicy(policy),
		services.WithDocumentStore(docStore),
		services.WithAnswerCache(settings.Answer.CacheSize, settings.Answer.CacheTTL),
		services.WithHistory(settings.Answer.HistorySize),
	)
	svcs.Query = queries

	// Writes through this view drop cached answers; the retriever only reads.
	index := services.WatchIndex(result.VectorIndex, queries.InvalidateAnswers)

	locks := services.NewDocumentLocks()
	svcs.Index = services.NewIndexService(
		chunker.New(chunker.WithChunkSize(settings.Chunker.Size), chunker.WithOverlap(settings.Chunker.Overlap)),
		result.EmbeddingService,
		index,
		docStore,
		registry,
		services.WithEmbeddingSettings(settings.Embedding),
		services.WithIndexPolicy(policy),
		services.WithBatchTimeout(settings.Answer.CallTimeout),
		services.WithDocumentLocks(locks),
	)

	documents := services.NewDocumentService(docStore, index)
	documents.SetUploadDir(svcs.UploadDir)
	documents.ShareLocks(locks)
	svcs.Document = documents

	logger.Debug("pipeline ready: %s embeddings, %s answers, %s index",
		settings.Embedding.Provider, settings.LLM.Provider, settings.Index.Backend)

	return result.Close, nil
}

// wireDocuments installs a document service over the stored index alone,
// for when the pipeline could not be built. If the index cannot be opened
// either, removals are refused rather than leave orphaned chunks behind.
func wireDocuments(
	ctx context.Context,
	svcs *cli.Services,
	settingsService *services.SettingsService,
	docStore driven.DocumentStore,
	dataDir string,
) func() {
	var index driven.VectorIndex
	settings, err := settingsService.Get()
	if err == nil {
		index, err = ai.OpenIndex(ctx, settings, dataDir)
	}
	if err != nil {
		logger.Warn("vector index unavailable, documents cannot be removed: %v", err)
	}

	documents := services.NewDocumentService(docStore, index)
	documents.SetUploadDir(svcs.UploadDir)
	svcs.Document = documents

	return func() {
		if index != nil {
			_ = index.Close()
		}
	}
}
