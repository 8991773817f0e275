// Package lease serializes work on the same conversation across goroutines
// and, with Redis, across processes.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrLeaseNotAcquired = errors.New("lease not acquired")
	ErrLeaseLost        = errors.New("lease lost")
)

type Locker interface {
	// Acquire blocks until the key is free or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type Lease interface {
	Key() string
	// Extend pushes expiry out to ttl from now. It fails with ErrLeaseLost
	// once the lease has expired and someone else may hold the key.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release is safe to call more than once.
	Release(ctx context.Context) error
}

// KeepAlive extends l every ttl/3 until stop is called or ctx is done.
// onErr, if set, sees every failed extension.
func KeepAlive(ctx context.Context, l Lease, ttl time.Duration, onErr func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, ttl); err != nil && ctx.Err() == nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// LocalLocker is an in-process Locker. ttl is not enforced since a holder
// cannot outlive the process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// slot is dropped from the map once nobody holds or waits for it.
type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = &LocalLocker{}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]*slot{}}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localLease{key: key, slot: s, locker: l}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrLeaseNotAcquired, key, ctx.Err())
	}
}

// Len reports how many keys are held or waited on.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 && l.slots[key] == s {
		delete(l.slots, key)
	}
}

type localLease struct {
	key    string
	slot   *slot
	locker *LocalLocker
	once   sync.Once
}

func (l *localLease) Key() string { return l.key }

func (l *localLease) Extend(context.Context, time.Duration) error { return nil }

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		<-l.slot.ch
		l.locker.unref(l.key, l.slot)
	})
	return nil
}
