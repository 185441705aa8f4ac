/*
PURPOSE:
  Read side of the saved sampler state: the population of parameter
  vectors the DREAM sampler visited, organised by generation and chain.

REQUIREMENTS:
  User-specified:
  - Mark outlier chains before drawing.
  - Draw the last portion of generations from the remaining chains.
  - Expose the parameter labels recorded with the state.

  Implementation-discovered:
  - Imports need a write side too (Writer), kept separate so the draw
    loop only ever sees Store.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run, internal/cli (import-draws)
  - Backends: MemoryStore, SQLiteStore

ERROR HANDLING:
  - ErrNoDraws when the state is empty or every chain is an outlier.
  - ErrWidthMismatch is for callers comparing draw width to their
    parameter count.

USAGE:
  st, err := sampler.Open(ctx, "sqlite", "model152both.db")
  defer st.Close()
  _, _ = st.MarkOutliers(ctx)
  draws, err := st.Draw(ctx, 1)

RELATED FILES:
  - internal/sampler/outliers.go
  - internal/sampler/import.go
*/

package sampler

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoDraws       = errors.New("sampler state holds no draws")
	ErrWidthMismatch = errors.New("draw width does not match parameter count")
)

// Sample is one point visited by one chain in one generation.
type Sample struct {
	Generation int
	Chain      int
	LogP       float64
	Point      []float64
}

// Draws is a flat, generation-major list of parameter vectors.
type Draws struct {
	Points [][]float64
	Labels []string
}

// Len returns the number of draws.
func (d Draws) Len() int { return len(d.Points) }

// Width returns the length of the parameter vectors, or 0 when empty.
func (d Draws) Width() int {
	if len(d.Points) == 0 {
		return 0
	}
	return len(d.Points[0])
}

// Store is the read side of a sampler state.
type Store interface {
	Labels(ctx context.Context) ([]string, error)
	MarkOutliers(ctx context.Context) (int, error)
	Draw(ctx context.Context, portion float64) (Draws, error)
	Close() error
}

// Writer fills a store.
type Writer interface {
	SetLabels(ctx context.Context, labels []string) error
	Append(ctx context.Context, samples ...Sample) error
}

// Open returns an initialised store of the given kind. The "memory" kind
// starts empty and ignores path; it serves tests and in-process callers
// that fill the store themselves.
func Open(ctx context.Context, kind, path string) (Store, error) {
	switch kind {
	case "", "sqlite":
		s := NewSQLiteStore(path)
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("open sampler state %s: %w", path, err)
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported sampler store: %s", kind)
	}
}

func checkPortion(portion float64) error {
	if !(portion > 0 && portion <= 1) {
		return fmt.Errorf("draw portion must be in (0, 1], got %g", portion)
	}
	return nil
}
