package ratelimit

import (
	"context"
	"sync"
)

// Locker serializes appends of a single identity so the rate check and the
// insert that follows it cannot interleave with another append. The func
// returned by Lock releases the lock.
type Locker interface {
	Lock(ctx context.Context, identity string) (func(), error)
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until identity is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, identity string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[identity]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[identity] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(identity, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(identity, kl)
		})
	}, nil
}

func (l *LocalLocker) release(identity string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, identity)
	}
}
