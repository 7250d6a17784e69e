package locks

import (
	"context"
	"sync"
	"time"
)

const backendLocal = "local"

type localEntry struct {
	slot chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted and
// dropped once no goroutine holds or waits on the key.
type LocalLocker struct {
	mu       sync.Mutex
	entries  map[string]*localEntry
	observer WaitObserver
}

// NewLocalLocker builds an in-process locker; observer may be nil.
func NewLocalLocker(observer WaitObserver) *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry), observer: observer}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, notAcquired(key, ctx.Err())
	}

	if l.observer != nil {
		l.observer.ObserveLockWait(backendLocal, time.Since(started))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			l.release(key, entry)
		})
	}, nil
}

func (l *LocalLocker) release(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports how many keys are tracked; used by tests to check cleanup.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
