// Package namelock provides per-name mutual exclusion so that two requests
// never reserve or mutate the same asset name at once.
package namelock

import (
	"context"
	"sync"
)

// Locker serializes work on a key. Release funcs are safe to call more than
// once.
type Locker interface {
	// TryLock takes the lock without waiting. ok is false when the key is
	// held elsewhere.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
	// Lock waits until the lock is free or ctx is done.
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]*slot)
	}
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) dropSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) releaser(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.dropSlot(key, s)
		})
	}
}

func (l *Local) TryLock(ctx context.Context, key string) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s := l.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return l.releaser(key, s), true, nil
	default:
		l.dropSlot(key, s)
		return nil, false, nil
	}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return l.releaser(key, s), nil
	case <-ctx.Done():
		l.dropSlot(key, s)
		return nil, ctx.Err()
	}
}

var _ Locker = (*Local)(nil)
