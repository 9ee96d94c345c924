package services

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DocumentLocks serialises writes to one document across services: a
// removal and an indexing run of the same document never overlap.
type DocumentLocks struct {
	mu   sync.Mutex
	held map[string]*documentLock
}

type documentLock struct {
	sem     *semaphore.Weighted
	waiters int
}

func NewDocumentLocks() *DocumentLocks {
	return &DocumentLocks{held: map[string]*documentLock{}}
}

// Lock blocks until documentID is free or ctx ends.
func (l *DocumentLocks) Lock(ctx context.Context, documentID string) (func(), error) {
	e := l.ref(documentID)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(documentID, e)
		return nil, err
	}
	return l.unlocker(documentID, e), nil
}

// TryLock reports false instead of waiting when documentID is held.
func (l *DocumentLocks) TryLock(documentID string) (func(), bool) {
	e := l.ref(documentID)
	if !e.sem.TryAcquire(1) {
		l.unref(documentID, e)
		return nil, false
	}
	return l.unlocker(documentID, e), true
}

func (l *DocumentLocks) unlocker(documentID string, e *documentLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(documentID, e)
		})
	}
}

func (l *DocumentLocks) ref(documentID string) *documentLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[documentID]
	if !ok {
		e = &documentLock{sem: semaphore.NewWeighted(1)}
		l.held[documentID] = e
	}
	e.waiters++
	return e
}

func (l *DocumentLocks) unref(documentID string, e *documentLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.waiters--; e.waiters == 0 {
		delete(l.held, documentID)
	}
}
