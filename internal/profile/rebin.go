/*
PURPOSE:
  Moves a binned quantity from one set of bin edges onto another.

REQUIREMENTS:
  User-specified:
  - Profiles from any engine land on the accumulator's fixed grid.

  Implementation-discovered:
  - Totals must be conserved where the grids overlap, so values are
    split by overlap length, not interpolated.

ARCHITECTURE INTEGRATION:
  - Called by: Accumulator.Add

ERROR HANDLING:
  - Mismatched lengths and decreasing edges are errors.

RELATED FILES:
  - internal/profile/accumulator.go
*/

package profile

import "fmt"

// Rebin redistributes the per-bin quantities in over the bin edges x onto the
// bin edges xo. Each input bin contributes to an output bin in proportion to
// their overlap, so the total is conserved where the grids overlap.
// len(x) must be len(in)+1; both edge sequences must be non-decreasing.
func Rebin(x, in, xo []float64) ([]float64, error) {
	if len(x) != len(in)+1 {
		return nil, fmt.Errorf("rebin: %d edges for %d values", len(x), len(in))
	}
	if len(xo) < 2 {
		return nil, fmt.Errorf("rebin: output needs at least two edges, got %d", len(xo))
	}
	for i := 1; i < len(x); i++ {
		if x[i] < x[i-1] {
			return nil, fmt.Errorf("rebin: input edges decrease at %d (%g < %g)", i, x[i], x[i-1])
		}
	}
	for i := 1; i < len(xo); i++ {
		if xo[i] < xo[i-1] {
			return nil, fmt.Errorf("rebin: output edges decrease at %d (%g < %g)", i, xo[i], xo[i-1])
		}
	}

	out := make([]float64, len(xo)-1)
	i, j := 0, 0
	for i < len(in) && j < len(out) {
		lo := max(x[i], xo[j])
		hi := min(x[i+1], xo[j+1])
		if width := x[i+1] - x[i]; hi > lo && width > 0 {
			out[j] += in[i] * (hi - lo) / width
		}
		if x[i+1] < xo[j+1] {
			i++
		} else {
			j++
		}
	}
	return out, nil
}
