package indexer

import (
	"errors"
	"sync/atomic"
)

// ErrIndexInProgress is returned when a run is already active on the same Indexer
var ErrIndexInProgress = errors.New("indexing already in progress")

// IndexLock is a non-blocking lock guarding one ingestion run at a time.
// Runs from separate processes are serialized by the store instead.
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire attempts to acquire the lock without blocking
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Running reports whether a run holds the lock
func (l *IndexLock) Running() bool {
	return l.state.Load() == 1
}
