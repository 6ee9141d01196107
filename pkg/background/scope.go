package background

import (
	"context"
	"sync"
	"time"
)

// Scope - concurrency scope: a cancelable context shared by a group of goroutines
// and a way to wait for all of them.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	active int
	wg     sync.WaitGroup
}

// NewScope - concurrency scope builder. The returned cancel func stops the scope
// and waits until every member is done.
func NewScope(parent context.Context) (scope *Scope, cancel func()) {
	ctx, cancelFunc := context.WithCancel(parent)
	s := &Scope{ctx: ctx, cancel: cancelFunc}
	return s,
		func() {
			s.Cancel()
			s.wg.Wait()
		}
}

// Context - return scope context, it is done after Cancel.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go - runs f as a scope member. Returns false without running f
// when the scope is already canceled.
func (s *Scope) Go(f func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.active++
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
			s.wg.Done()
		}()
		f(s.ctx)
	}()
	return true
}

// Active - number of running members.
func (s *Scope) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Cancel - cancels scope context, new members are not accepted anymore.
func (s *Scope) Cancel() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// Wait - waits for members not longer than timeout.
// Reports whether all members are done.
func (s *Scope) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
