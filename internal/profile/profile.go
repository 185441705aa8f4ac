/*
PURPOSE:
  Defines the depth profile exchanged between a Profile Engine and the
  accumulators, and the Engine interface itself.

REQUIREMENTS:
  User-specified:
  - An engine turns one model into (z, rho, irho, rhoM, thetaM).
  - Profiles use the duplicated-boundary layout: every slab contributes two
    z points and two equal density values, so steps are exact.

  Implementation-discovered:
  - Engines may be expensive (external simulation) and must honour ctx.

ARCHITECTURE INTEGRATION:
  - Implemented by: StepEngine (step.go), ExecEngine (exec.go)
  - Called by: internal/engine.Run

ERROR HANDLING:
  - Validate rejects profiles whose sequences differ in length.

USAGE:
  prof, err := eng.Profile(ctx, m)
  err = acc.Add(prof.Z, prof.Rho, prof.RhoM)

RELATED FILES:
  - internal/profile/accumulator.go
*/

package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/daryltucker/reflstats/internal/model"
)

// ErrShortProfile is returned for profiles too short to hold one slab.
var ErrShortProfile = errors.New("profile too short")

// Profile is a depth profile in duplicated-boundary layout.
type Profile struct {
	Z      []float64 `json:"z"`
	Rho    []float64 `json:"rho"`
	IRho   []float64 `json:"irho"`
	RhoM   []float64 `json:"rhoM"`
	ThetaM []float64 `json:"thetaM"`
}

// Validate checks that all sequences have the same length.
func (p Profile) Validate() error {
	n := len(p.Z)
	for name, s := range map[string][]float64{"rho": p.Rho, "irho": p.IRho, "rhoM": p.RhoM, "thetaM": p.ThetaM} {
		if len(s) != n {
			return fmt.Errorf("profile %s has %d points, z has %d", name, len(s), n)
		}
	}
	if n < 3 {
		return fmt.Errorf("%w: %d points", ErrShortProfile, n)
	}
	return nil
}

// Engine computes the depth profile of a model.
type Engine interface {
	Profile(ctx context.Context, m *model.Model) (Profile, error)
}
