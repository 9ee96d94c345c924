package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentLocks_TryLock(t *testing.T) {
	locks := NewDocumentLocks()

	unlock, ok := locks.TryLock("doc-1")
	require.True(t, ok)

	_, ok = locks.TryLock("doc-1")
	assert.False(t, ok)

	other, ok := locks.TryLock("doc-2")
	require.True(t, ok)
	other()

	unlock()
	unlock()

	again, ok := locks.TryLock("doc-1")
	require.True(t, ok)
	again()
	assert.Empty(t, locks.held)
}

func TestDocumentLocks_LockWaitsForRelease(t *testing.T) {
	locks := NewDocumentLocks()
	unlock, ok := locks.TryLock("doc-1")
	require.True(t, ok)

	acquired := make(chan struct{})
	go func() {
		release, err := locks.Lock(context.Background(), "doc-1")
		assert.NoError(t, err)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}

func TestDocumentLocks_LockCanceled(t *testing.T) {
	locks := NewDocumentLocks()
	unlock, ok := locks.TryLock("doc-1")
	require.True(t, ok)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := locks.Lock(ctx, "doc-1")
	assert.ErrorIs(t, err, context.Canceled)
}
