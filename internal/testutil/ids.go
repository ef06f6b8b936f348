// Package testutil provides deterministic test doubles shared across
// the store, relation, and content packages.
package testutil

import (
	"fmt"
	"sync"
)

// IDSequence generates deterministic, sortable IDs for tests:
// "post_0001", "post_0002", ... with an independent counter per prefix.
//
// Zero-padded counters sort lexicographically in creation order, matching
// the production UUIDv7 property tests rely on.
//
// Thread-safety: all methods are safe for concurrent use.
type IDSequence struct {
	mu   sync.Mutex
	next map[string]int
}

// NewIDSequence creates a sequence with all counters at zero.
func NewIDSequence() *IDSequence {
	return &IDSequence{next: make(map[string]int)}
}

// NewID returns the next ID for the prefix.
func (s *IDSequence) NewID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[prefix]++
	return fmt.Sprintf("%s_%04d", prefix, s.next[prefix])
}
