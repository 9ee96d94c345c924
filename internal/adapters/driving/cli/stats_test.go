package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

func TestStatsCmd_PrintsCounters(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.query.stats = domain.QueryStats{
		TotalQueries:      12,
		FailedQueries:     1,
		AverageTime:       2345 * time.Millisecond,
		AverageConfidence: 0.734,
		ConfidenceHigh:    4,
		ConfidenceMedium:  6,
		ConfidenceLow:     1,
		IndexedDocuments:  3,
		IndexedChunks:     412,
		CacheHits:         5,
		CacheMisses:       7,
		QueryTypes: map[domain.QueryType]int{
			domain.QueryTypeStatistical: 7,
			domain.QueryTypeFactual:     4,
		},
		ErrorKinds: map[domain.ErrorKind]int{domain.KindTimeout: 1},
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"stats"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "Documents: 3")
	assert.Contains(t, out, "Chunks: 412")
	assert.Contains(t, out, "Total: 12")
	assert.Contains(t, out, "Average time: 2.345s")
	assert.Contains(t, out, "Average confidence: 73.4%")
	assert.Contains(t, out, "4 high, 6 medium, 1 low")
	assert.Contains(t, out, "timeout: 1")
	assert.Contains(t, out, "Answer cache: 5 hits, 7 misses")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("factual: 4")), bytes.Index(buf.Bytes(), []byte("statistical: 7")))
}

func TestStatsCmd_JSONOutput(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.query.stats = domain.QueryStats{TotalQueries: 2, IndexedChunks: 40}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"stats", "--json"})
	defer func() {
		rootCmd.SetArgs(nil)
		statsJSON = false
	}()

	require.NoError(t, rootCmd.Execute())

	var st domain.QueryStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &st))
	assert.Equal(t, 2, st.TotalQueries)
	assert.Equal(t, 40, st.IndexedChunks)
}

func TestStatsCmd_NoService(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	queryService = nil

	err := runStats(statsCmd, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "query service not configured")
}
