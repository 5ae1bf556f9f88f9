package crawl

import "sync"

// tokenSet is a FIFO of continuation tokens that never accepts the same
// token twice, even after it has been drained. This is what guarantees
// termination against a finite upstream.
//
// Thread-safety: safe for concurrent use, although the crawl loop is its
// only writer.
type tokenSet struct {
	mu      sync.Mutex
	pending []string
	seen    map[string]struct{}
}

// newTokenSet creates an empty set. Tokens passed in are marked as already
// visited and will be rejected by Add.
func newTokenSet(visited ...string) *tokenSet {
	s := &tokenSet{
		pending: make([]string, 0, 16),
		seen:    make(map[string]struct{}, len(visited)+16),
	}
	for _, t := range visited {
		s.seen[t] = struct{}{}
	}
	return s
}

// Add enqueues token and reports whether it was new.
func (s *tokenSet) Add(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[token]; ok {
		return false
	}
	s.seen[token] = struct{}{}
	s.pending = append(s.pending, token)
	return true
}

// Drain removes and returns up to n tokens in insertion order.
func (s *tokenSet) Drain(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := make([]string, n)
	copy(batch, s.pending[:n])

	if n == len(s.pending) {
		s.pending = s.pending[:0]
	} else {
		s.pending = s.pending[n:]
	}
	return batch
}

// Len returns the number of pending tokens.
func (s *tokenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
