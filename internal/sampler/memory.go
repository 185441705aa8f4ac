/*
PURPOSE:
  In-memory sampler state, used by tests and by callers that build a
  population themselves.

REQUIREMENTS:
  Implementation-discovered:
  - Same draw order and outlier rule as SQLiteStore, so both backends
    can share one test suite.

ARCHITECTURE INTEGRATION:
  - Implements: Store, Writer
  - Opened by: sampler.Open(ctx, "memory", "")

ERROR HANDLING:
  - Append rejects a sample whose width differs from the first one.

RELATED FILES:
  - internal/sampler/store.go
*/

package sampler

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemoryStore holds one population in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	labels   []string
	samples  []Sample
	outliers map[int]bool
	width    int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{outliers: make(map[int]bool)}
}

// SetLabels replaces the parameter labels.
func (s *MemoryStore) SetLabels(_ context.Context, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.labels = slices.Clone(labels)
	return nil
}

// Labels returns a copy of the parameter labels.
func (s *MemoryStore) Labels(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.labels), nil
}

// Append copies samples into the store.
func (s *MemoryStore) Append(_ context.Context, samples ...Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sm := range samples {
		if s.width == 0 {
			s.width = len(sm.Point)
		}
		if len(sm.Point) != s.width {
			return fmt.Errorf("%w: sample of chain %d generation %d has %d values, expected %d",
				ErrWidthMismatch, sm.Chain, sm.Generation, len(sm.Point), s.width)
		}
		sm.Point = slices.Clone(sm.Point)
		s.samples = append(s.samples, sm)
	}
	return nil
}

// MarkOutliers flags the chains that fail the IQR test.
func (s *MemoryStore) MarkOutliers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outliers = make(map[int]bool)
	for _, c := range iqrOutliers(chainScores(s.samples)) {
		s.outliers[c] = true
	}
	return len(s.outliers), nil
}

// Draw returns the points of non-outlier chains in the last portion of
// generations, ordered by generation then chain.
func (s *MemoryStore) Draw(ctx context.Context, portion float64) (Draws, error) {
	if err := checkPortion(portion); err != nil {
		return Draws{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	gens := distinctGenerations(s.samples)
	if len(gens) == 0 {
		return Draws{}, ErrNoDraws
	}
	from := firstKeptGeneration(gens, portion)

	kept := make([]Sample, 0, len(s.samples))
	for _, sm := range s.samples {
		if sm.Generation >= from && !s.outliers[sm.Chain] {
			kept = append(kept, sm)
		}
	}
	if len(kept) == 0 {
		return Draws{}, ErrNoDraws
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Generation != kept[j].Generation {
			return kept[i].Generation < kept[j].Generation
		}
		return kept[i].Chain < kept[j].Chain
	})

	d := Draws{Points: make([][]float64, len(kept)), Labels: slices.Clone(s.labels)}
	for i, sm := range kept {
		if i%1024 == 0 && ctx.Err() != nil {
			return Draws{}, ctx.Err()
		}
		d.Points[i] = slices.Clone(sm.Point)
	}
	return d, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
