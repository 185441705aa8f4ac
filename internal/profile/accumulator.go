/*
PURPOSE:
  Folds per-draw depth profiles into per-bin mean and standard deviation
  on a fixed, uniform depth grid.

REQUIREMENTS:
  User-specified:
  - Drop the duplicated boundary points: one (edge, density) pair per slab.
  - Rebin onto the grid conserving integrated density, then scale by
    (average input step / grid step).
  - Track sum and sum of squares for the nuclear and magnetic channels.
  - Only bins whose centre lies strictly inside the profile are counted.
  - Bins never counted report NaN; that means "no data", not failure.

  Implementation-discovered:
  - Worker-private accumulators merge by plain addition.
  - Round-off can push sum²/n − mean² slightly below zero; counted bins
    clamp the variance at zero.

ARCHITECTURE INTEGRATION:
  - Fed by: internal/engine.Run
  - Read by: internal/output (profile writer)

ERROR HANDLING:
  - ErrShortProfile, ErrGridMismatch, and errors for mismatched lengths or
    non-increasing depths.

USAGE:
  acc, _ := profile.NewAccumulator("T300", profile.DefaultGrid())
  _ = acc.Add(p.Z, p.Rho, p.RhoM)
  mean, std := acc.Mean()

RELATED FILES:
  - internal/profile/rebin.go
*/

package profile

import (
	"errors"
	"fmt"
	"math"
)

// ErrGridMismatch is returned when merging accumulators on different grids.
var ErrGridMismatch = errors.New("accumulator grids differ")

// Grid describes the output depth grid, numpy.arange style: ZMax is excluded.
type Grid struct {
	ZMin float64 `yaml:"z_min" json:"z_min"`
	ZMax float64 `yaml:"z_max" json:"z_max"`
	Step float64 `yaml:"z_step" json:"z_step"`
}

// DefaultGrid is -150 Å to 450 Å in 5 Å steps.
func DefaultGrid() Grid {
	return Grid{ZMin: -150, ZMax: 450, Step: 5}
}

// Edges returns the grid points.
func (g Grid) Edges() ([]float64, error) {
	if g.Step <= 0 {
		return nil, fmt.Errorf("grid step must be positive, got %g", g.Step)
	}
	n := int(math.Ceil((g.ZMax-g.ZMin)/g.Step - 1e-9))
	if n < 2 {
		return nil, fmt.Errorf("grid [%g, %g) with step %g has fewer than two points", g.ZMin, g.ZMax, g.Step)
	}
	z := make([]float64, n)
	for i := range z {
		z[i] = g.ZMin + float64(i)*g.Step
	}
	return z, nil
}

// Accumulator holds running statistics for one model.
type Accumulator struct {
	Name  string
	Grid  Grid
	Z     []float64
	Draws int

	Sum      []float64
	SumSq    []float64
	MagSum   []float64
	MagSumSq []float64
	Count    []int
}

// NewAccumulator creates an empty accumulator on grid g.
func NewAccumulator(name string, g Grid) (*Accumulator, error) {
	z, err := g.Edges()
	if err != nil {
		return nil, err
	}
	bins := len(z) - 1
	return &Accumulator{
		Name:     name,
		Grid:     g,
		Z:        z,
		Sum:      make([]float64, bins),
		SumSq:    make([]float64, bins),
		MagSum:   make([]float64, bins),
		MagSumSq: make([]float64, bins),
		Count:    make([]int, bins),
	}, nil
}

// Add folds one profile in. z, rho and rhoM use the duplicated-boundary layout.
func (a *Accumulator) Add(z, rho, rhoM []float64) error {
	if len(rho) != len(z) || len(rhoM) != len(z) {
		return fmt.Errorf("profile lengths differ: z=%d rho=%d rhoM=%d", len(z), len(rho), len(rhoM))
	}
	if len(z) < 3 {
		return fmt.Errorf("%w: %d points", ErrShortProfile, len(z))
	}

	edges := make([]float64, 0, (len(z)+1)/2)
	for i := 0; i < len(z); i += 2 {
		edges = append(edges, z[i])
	}
	values := make([]float64, 0, len(edges)-1)
	magValues := make([]float64, 0, len(edges)-1)
	for i := 0; i < len(z)-2; i += 2 {
		values = append(values, rho[i+1])
		magValues = append(magValues, rhoM[i+1])
	}

	step, err := averageStep(z)
	if err != nil {
		return err
	}
	r, err := Rebin(edges, values, a.Z)
	if err != nil {
		return err
	}
	rm, err := Rebin(edges, magValues, a.Z)
	if err != nil {
		return err
	}

	scale := step / a.Grid.Step
	lo, hi := edges[0], edges[len(edges)-1]
	for j := range r {
		v, m := r[j]*scale, rm[j]*scale
		a.Sum[j] += v
		a.SumSq[j] += v * v
		a.MagSum[j] += m
		a.MagSumSq[j] += m * m
		if c := a.Z[j] + a.Grid.Step/2; c > lo && c < hi {
			a.Count[j]++
		}
	}
	a.Draws++
	return nil
}

// averageStep is the mean slab width over slabs starting at positive depth,
// or over all slabs when none do.
func averageStep(z []float64) (float64, error) {
	var pos, all float64
	var npos, nall int
	for i := 0; i < len(z)-2; i += 2 {
		w := z[i+1] - z[i]
		all += w
		nall++
		if z[i] > 0 {
			pos += w
			npos++
		}
	}
	step := 0.0
	switch {
	case npos > 0:
		step = pos / float64(npos)
	case nall > 0:
		step = all / float64(nall)
	}
	if step <= 0 {
		return 0, fmt.Errorf("profile has no positive slab width")
	}
	return step, nil
}

// Merge adds the statistics of b into a.
func (a *Accumulator) Merge(b *Accumulator) error {
	if a.Grid != b.Grid || len(a.Z) != len(b.Z) {
		return fmt.Errorf("%w: %s %+v vs %s %+v", ErrGridMismatch, a.Name, a.Grid, b.Name, b.Grid)
	}
	for j := range a.Sum {
		a.Sum[j] += b.Sum[j]
		a.SumSq[j] += b.SumSq[j]
		a.MagSum[j] += b.MagSum[j]
		a.MagSumSq[j] += b.MagSumSq[j]
		a.Count[j] += b.Count[j]
	}
	a.Draws += b.Draws
	return nil
}

// Mean returns the per-bin mean and standard deviation of the density.
func (a *Accumulator) Mean() ([]float64, []float64) {
	return meanStd(a.Sum, a.SumSq, a.Count)
}

// MeanMagnetism returns the per-bin mean and standard deviation of the magnetic density.
func (a *Accumulator) MeanMagnetism() ([]float64, []float64) {
	return meanStd(a.MagSum, a.MagSumSq, a.Count)
}

func meanStd(sum, sq []float64, count []int) ([]float64, []float64) {
	avg := make([]float64, len(sum))
	sig := make([]float64, len(sum))
	for j := range sum {
		n := float64(count[j])
		avg[j] = sum[j] / n
		v := sq[j]/n - avg[j]*avg[j]
		if count[j] > 0 && v < 0 {
			v = 0
		}
		sig[j] = math.Sqrt(v)
	}
	return avg, sig
}
