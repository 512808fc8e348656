package utils

import (
	"context"
	"sync"
)

// QueueLock serializes work per key. Each key gets an independent
// single-slot channel, so operations on different keys never contend.
// Acquisition respects the caller's context: a caller that gives up
// waiting has taken no lock and applied no effects.
type QueueLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewQueueLock() *QueueLock {
	return &QueueLock{
		slots: make(map[string]chan struct{}),
	}
}

func (l *QueueLock) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// Acquire blocks until the key's slot is free or ctx is done. On success
// the caller must call the returned release function exactly once.
func (l *QueueLock) Acquire(ctx context.Context, key string) (release func(), err error) {
	s := l.slot(key)

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
