// Package rules holds the rule snapshot store and the two anomaly
// evaluators (threshold and statistical).
//
// Evaluator state is owned by the stream consumer, which is the sole
// writer; it needs no internal locking. The snapshot store is the only
// shared mutable cell on the hot path: the rule subscriber writes it,
// consumer iterations read it.
package rules

import (
	"sync/atomic"

	"github.com/eventpulse/eventpulse/pkg/models"
)

// SnapshotStore publishes the current enabled-rule set behind an atomic
// pointer to an immutable slice. Readers observe either the previous or
// the next snapshot in full, never a partial mix.
type SnapshotStore struct {
	current atomic.Pointer[[]models.Rule]
}

// NewSnapshotStore returns a store holding an empty snapshot.
func NewSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	empty := []models.Rule{}
	s.current.Store(&empty)
	return s
}

// Get returns the current snapshot. The returned slice must be treated as
// immutable; Set replaces it wholesale.
func (s *SnapshotStore) Get() []models.Rule {
	return *s.current.Load()
}

// Set atomically replaces the snapshot.
func (s *SnapshotStore) Set(next []models.Rule) {
	if next == nil {
		next = []models.Rule{}
	}
	s.current.Store(&next)
}
