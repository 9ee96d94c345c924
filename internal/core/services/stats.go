package services

import (
	"sync"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// queryStats accumulates outcomes of answered and failed queries.
type queryStats struct {
	mu            sync.Mutex
	total         int
	failed        int
	totalTime     time.Duration
	totalConf     float64
	queryTypes    map[domain.QueryType]int
	documentTypes map[domain.DocumentType]int
	high          int
	medium        int
	low           int
	errorKinds    map[domain.ErrorKind]int
	cacheHits     int
	cacheMisses   int
}

func newQueryStats() *queryStats {
	return &queryStats{
		queryTypes:    make(map[domain.QueryType]int),
		documentTypes: make(map[domain.DocumentType]int),
		errorKinds:    make(map[domain.ErrorKind]int),
	}
}

func (s *queryStats) recordAnswer(a *domain.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.totalTime += a.Elapsed
	s.totalConf += a.Confidence
	s.queryTypes[a.QueryType]++
	s.documentTypes[a.DocumentType]++
	switch {
	case a.Confidence >= domain.ConfidenceHighThreshold:
		s.high++
	case a.Confidence >= domain.ConfidenceMediumThreshold:
		s.medium++
	default:
		s.low++
	}
}

func (s *queryStats) recordFailure(kind domain.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.failed++
	s.errorKinds[kind]++
}

func (s *queryStats) recordCacheLookup(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.cacheHits++
	} else {
		s.cacheMisses++
	}
}

// snapshot returns a copy. Averages cover answered queries only.
func (s *queryStats) snapshot() domain.QueryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := domain.QueryStats{
		TotalQueries:     s.total,
		FailedQueries:    s.failed,
		QueryTypes:       make(map[domain.QueryType]int, len(s.queryTypes)),
		DocumentTypes:    make(map[domain.DocumentType]int, len(s.documentTypes)),
		ConfidenceHigh:   s.high,
		ConfidenceMedium: s.medium,
		ConfidenceLow:    s.low,
		ErrorKinds:       make(map[domain.ErrorKind]int, len(s.errorKinds)),
		CacheHits:        s.cacheHits,
		CacheMisses:      s.cacheMisses,
	}
	if answered := s.total - s.failed; answered > 0 {
		out.AverageTime = s.totalTime / time.Duration(answered)
		out.AverageConfidence = s.totalConf / float64(answered)
	}
	for k, v := range s.queryTypes {
		out.QueryTypes[k] = v
	}
	for k, v := range s.documentTypes {
		out.DocumentTypes[k] = v
	}
	for k, v := range s.errorKinds {
		out.ErrorKinds[k] = v
	}
	return out
}
