package history

import (
	"fmt"
	"sync"
)

// Stack - keeps a limited number of latest chat lines.
// When the limit is reached, every push drops the oldest line.
type Stack struct {
	mu    sync.RWMutex
	ring  []string
	start int // index of the oldest line
	n     int
}

// NewStack - build history stack.
func NewStack(max int) (*Stack, error) {
	if max <= 0 {
		return nil, fmt.Errorf("history.NewStack: max (%d) must be greater than 0", max)
	}
	return &Stack{ring: make([]string, max)}, nil
}

// Cap - max number of kept lines.
func (s *Stack) Cap() int {
	return len(s.ring)
}

// Len - returns number of currently kept lines.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// Push - adds line to history.
func (s *Stack) Push(item string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n < len(s.ring) {
		s.ring[(s.start+s.n)%len(s.ring)] = item
		s.n++
		return
	}
	s.ring[s.start] = item
	s.start = (s.start + 1) % len(s.ring)
}

// Tail - makes copy of last n lines.
// The first item in resulting slice is the oldest one.
// Negative n is treated as its absolute value.
func (s *Stack) Tail(n int) []string {
	if n < 0 {
		n = -n
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.n {
		n = s.n
	}
	tail := make([]string, n)
	for i := 0; i < n; i++ {
		tail[i] = s.ring[(s.start+s.n-n+i)%len(s.ring)]
	}
	return tail
}
