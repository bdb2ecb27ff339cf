// Package lock serializes writers that target the same booking slot.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when the lock could not be taken before ctx ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive, key-scoped critical sections.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local is an in-process keyed mutex. Entries are reference counted and
// removed when the last holder or waiter leaves.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slotLock
}

type slotLock struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slotLock)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slotLock{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ErrNotAcquired
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slotLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
