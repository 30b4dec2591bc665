package coordinator

import "sync"

// Sequence numbers the structures created during one simulation setup so
// that their labels stay unique across the run. A fresh Sequence starts at
// zero; nothing is persisted.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence returns a sequence starting at zero.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Current returns the number the next structure will be labelled with.
func (s *Sequence) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Advance moves to the next number and returns it.
func (s *Sequence) Advance() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

// Reset rewinds the sequence to zero at the start of a new run.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}
