package service

import (
	"math/rand/v2"
	"sync"
)

// BatchSizer yields the size of the next batch.
type BatchSizer interface {
	NextSize() int
}

// JitteredSizer draws sizes uniformly from [Base-Jitter, Base+Jitter] so that
// batches do not all look alike to spam filters.
type JitteredSizer struct {
	Base   int
	Jitter int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewJitteredSizer(base, jitter int) *JitteredSizer {
	return &JitteredSizer{Base: base, Jitter: jitter}
}

// NewSeededSizer is deterministic for a given seed.
func NewSeededSizer(base, jitter int, seed uint64) *JitteredSizer {
	return &JitteredSizer{Base: base, Jitter: jitter, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *JitteredSizer) NextSize() int {
	if s.Jitter <= 0 {
		return s.Base
	}
	span := 2*s.Jitter + 1
	if s.rng == nil {
		return s.Base + rand.IntN(span) - s.Jitter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Base + s.rng.IntN(span) - s.Jitter
}

// SplitBatches partitions items into consecutive batches without reordering,
// dropping or duplicating any item. Inputs of zero or one item form a single batch.
func SplitBatches[T any](items []T, sizer BatchSizer) [][]T {
	if len(items) <= 1 {
		return [][]T{items}
	}

	var batches [][]T
	for start := 0; start < len(items); {
		size := min(max(sizer.NextSize(), 1), len(items)-start)
		batches = append(batches, items[start:start+size])
		start += size
	}
	return batches
}
