/*
PURPOSE:
  Built-in profile engine: a refl1d-style slab stack rendered as
  microslabs, with no external simulator.

REQUIREMENTS:
  User-specified:
  - Produce rho and rhoM against depth for one model.

  Implementation-discovered:
  - Semi-infinite end layers have no thickness in the log and get a
    fixed margin.
  - Interfaces blend neighbouring densities with an error function.
  - Magnetic density is zero inside the dead layers of a magnetic slab.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run through the Engine interface
  - Configured by: engine.dz / engine.margin

ERROR HANDLING:
  - Non-positive DZ and models without layers are errors.

RELATED FILES:
  - internal/profile/profile.go
  - internal/profile/exec.go
*/

package profile

import (
	"context"
	"errors"
	"math"

	"github.com/daryltucker/reflstats/internal/model"
)

// DefaultThetaM is the magnetisation angle reported outside magnetic layers.
const DefaultThetaM = 270.0

// StepEngine is the built-in engine. Layers are stacked in record order with
// the top of the first layer at z=0, and the profile is sampled as microslabs
// of width DZ. Layers with no thickness (the semi-infinite ends) get Margin.
type StepEngine struct {
	DZ     float64
	Margin float64
}

type slab struct {
	lo, hi float64
	layer  *model.Layer
}

// Profile implements Engine.
func (e StepEngine) Profile(ctx context.Context, m *model.Model) (Profile, error) {
	if e.DZ <= 0 {
		return Profile{}, errors.New("step engine: dz must be positive")
	}
	layers := m.Layers()
	if len(layers) == 0 {
		return Profile{}, errors.New("step engine: model has no layers")
	}
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	slabs := make([]slab, len(layers))
	z := 0.0
	for i, l := range layers {
		w := l.Thickness
		if w <= 0 {
			w = e.Margin
		}
		if i == 0 {
			z = -w
		}
		slabs[i] = slab{lo: z, hi: z + w, layer: l}
		z += w
	}
	zmin, zmax := slabs[0].lo, slabs[len(slabs)-1].hi
	if zmax <= zmin {
		return Profile{}, errors.New("step engine: stack has no depth")
	}

	n := int(math.Ceil((zmax - zmin) / e.DZ))
	p := Profile{
		Z:      make([]float64, 0, 2*n),
		Rho:    make([]float64, 0, 2*n),
		IRho:   make([]float64, 0, 2*n),
		RhoM:   make([]float64, 0, 2*n),
		ThetaM: make([]float64, 0, 2*n),
	}
	for k := 0; k < n; k++ {
		lo := zmin + float64(k)*e.DZ
		hi := math.Min(lo+e.DZ, zmax)
		mid := (lo + hi) / 2

		rho, irho := nuclear(slabs, mid)
		rhoM, thetaM := magnetic(slabs, mid)
		p.Z = append(p.Z, lo, hi)
		p.Rho = append(p.Rho, rho, rho)
		p.IRho = append(p.IRho, irho, irho)
		p.RhoM = append(p.RhoM, rhoM, rhoM)
		p.ThetaM = append(p.ThetaM, thetaM, thetaM)
	}
	return p, nil
}

// smoothStep is 0 well below edge and 1 well above it, with an error
// function transition of width sigma.
func smoothStep(z, edge, sigma float64) float64 {
	if sigma <= 0 {
		if z < edge {
			return 0
		}
		return 1
	}
	return 0.5 * (1 + math.Erf((z-edge)/(sigma*math.Sqrt2)))
}

// The roughness of the boundary between slab k and k+1 is slab k's interface.
func nuclear(slabs []slab, z float64) (float64, float64) {
	rho, irho := slabs[0].layer.Rho, slabs[0].layer.IRho
	for k := 0; k+1 < len(slabs); k++ {
		s := smoothStep(z, slabs[k].hi, slabs[k].layer.Interface)
		rho += (slabs[k+1].layer.Rho - slabs[k].layer.Rho) * s
		irho += (slabs[k+1].layer.IRho - slabs[k].layer.IRho) * s
	}
	return rho, irho
}

func magnetic(slabs []slab, z float64) (float64, float64) {
	rhoM := 0.0
	thetaM := DefaultThetaM
	for _, s := range slabs {
		l := s.layer
		if !l.Magnetic {
			continue
		}
		lo, hi := s.lo+l.DeadBelow, s.hi-l.DeadAbove
		if hi <= lo {
			continue
		}
		below, above := l.InterfaceBelow, l.InterfaceAbove
		if below <= 0 {
			below = l.Interface
		}
		if above <= 0 {
			above = l.Interface
		}
		rhoM += l.RhoM * (smoothStep(z, lo, below) - smoothStep(z, hi, above))
		if z >= s.lo && z < s.hi {
			thetaM = l.ThetaM
		}
	}
	return rhoM, thetaM
}
