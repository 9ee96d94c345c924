package domain

import (
	"sort"
	"time"
)

// ScoredChunk pairs a chunk with its similarity to a query.
// Score is cosine similarity in [-1, 1]; higher is more similar.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RankBefore reports whether a ranks strictly ahead of b.
// Higher scores come first. Equal scores fall back to the lower
// document ID, then the earlier page, then the earlier offset, and
// finally the chunk ID so the order is total.
func RankBefore(a, b ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Chunk.DocumentID != b.Chunk.DocumentID {
		return a.Chunk.DocumentID < b.Chunk.DocumentID
	}
	if a.Chunk.Page != b.Chunk.Page {
		return a.Chunk.Page < b.Chunk.Page
	}
	if a.Chunk.Start != b.Chunk.Start {
		return a.Chunk.Start < b.Chunk.Start
	}
	return a.Chunk.ID < b.Chunk.ID
}

// SortRanked orders hits in place by RankBefore.
func SortRanked(hits []ScoredChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		return RankBefore(hits[i], hits[j])
	})
}

// SearchFilter restricts a vector search.
type SearchFilter struct {
	// DocumentID limits results to one document when non-empty.
	DocumentID string
}

// RetrieveOptions configures a single retrieval.
type RetrieveOptions struct {
	// TopK is the maximum number of hits. Zero uses the configured default.
	TopK int

	// DocumentID restricts retrieval to one document when non-empty.
	DocumentID string
}

// QueryResult is the ranked outcome of one retrieval. It is not persisted.
type QueryResult struct {
	// Hits are ordered by RankBefore and all pass the similarity threshold.
	Hits []ScoredChunk

	// Confidence summarises how well the hits support an answer, in [0, 1].
	Confidence float64

	// Elapsed is the retrieval wall-clock time.
	Elapsed time.Duration
}

// Empty reports whether no chunk passed the similarity threshold.
func (r *QueryResult) Empty() bool {
	return r == nil || len(r.Hits) == 0
}

// QueryType classifies the intent of a question.
type QueryType string

// Question intents.
const (
	QueryTypeFactual     QueryType = "factual"
	QueryTypeAnalytical  QueryType = "analytical"
	QueryTypeComparative QueryType = "comparative"
	QueryTypeStatistical QueryType = "statistical"
	QueryTypeExplanatory QueryType = "explanatory"
)

// DocumentType classifies retrieved context for prompt instructions.
type DocumentType string

// Context document types.
const (
	DocumentTypeEconomicReport    DocumentType = "economic_report"
	DocumentTypeBudgetAnalysis    DocumentType = "budget_analysis"
	DocumentTypeFinancialBulletin DocumentType = "financial_bulletin"
	DocumentTypeGeneral           DocumentType = "general_document"
)

// QueryRequest is the input to the query operation.
type QueryRequest struct {
	// Question is the user's natural-language question.
	Question string

	// DocumentID restricts retrieval to one document when non-empty.
	DocumentID string

	// TopK overrides the configured number of hits when positive.
	TopK int

	// Language is the answer language, defaulting to Turkish.
	Language string

	// Timeout bounds the whole retrieve and complete sequence when positive.
	Timeout time.Duration
}

// Source is a citation attached to an answer.
type Source struct {
	DocumentID string
	Filename   string
	ChunkID    string
	Page       int
	Snippet    string
	Score      float64
}

// Answer is the structured response to a question.
type Answer struct {
	// Question echoes the input question.
	Question string

	// Text is the synthesized answer including the confidence footer.
	Text string

	// Confidence is in [0, 1]. For grounded answers it never exceeds
	// the retrieval confidence.
	Confidence float64

	// Grounded is true when the answer was built from retrieved chunks.
	Grounded bool

	// NoSources marks answers produced without any retrieved context.
	NoSources bool

	// Sources are the citations in relevance order.
	Sources []Source

	// QueryType and DocumentType are the detected prompt categories.
	QueryType    QueryType
	DocumentType DocumentType

	// RetrievalConfidence is the retriever's aggregate score.
	RetrievalConfidence float64

	// Elapsed is the wall-clock time of retrieve plus complete.
	Elapsed time.Duration

	// RetrievalElapsed is the retrieval share of Elapsed.
	RetrievalElapsed time.Duration

	// Stages records the pipeline transitions for observability.
	Stages []StageTiming

	// Cached marks an answer served from the answer cache. Its Stages are
	// those of the run that produced it.
	Cached bool
}

// Confidence bands for the answer footer and query statistics.
const (
	ConfidenceHighThreshold   = 0.8
	ConfidenceMediumThreshold = 0.6
)

// QueryStats aggregates query outcomes since process start.
type QueryStats struct {
	TotalQueries      int
	FailedQueries     int
	AverageTime       time.Duration
	AverageConfidence float64
	QueryTypes        map[QueryType]int
	DocumentTypes     map[DocumentType]int
	ConfidenceHigh    int
	ConfidenceMedium  int
	ConfidenceLow     int
	IndexedChunks     int
	IndexedDocuments  int
	ErrorKinds        map[ErrorKind]int
	CacheHits         int
	CacheMisses       int
}

// QueryRecord is one answered question in the query history.
type QueryRecord struct {
	ID         string
	Question   string
	Answer     string
	Confidence float64
	Sources    int
	DocumentID string
	Language   string
	Cached     bool
	Elapsed    time.Duration
	At         time.Time
}
