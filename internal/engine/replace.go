/*
PURPOSE:
  Replays one posterior draw onto the parsed models.
  A draw is a flat vector ordered like Problem.Params; each position is
  written back into the layer field its parameter name points at.

REQUIREMENTS:
  User-specified:
  - "<model> <layer> <field>" names update one model.
  - "<layer> <field>" names update that layer in every model.
  - background and intensity are never re-injected.
  - A vector of the wrong length is fatal and changes nothing.

  Implementation-discovered:
  - Name resolution only depends on the parsed models, so it is done once
    in NewReplacer and reused for every draw and every worker clone.
  - Names pointing at unknown layers are skipped and reported once.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run (per draw, per worker)
  - Uses: internal/model, internal/output

ERROR HANDLING:
  - ErrLengthMismatch (wrapped) on a vector of the wrong length.

IMPLEMENTATION RULES:
  - Positional replay: index i of the draw belongs to Params[i].
  - Apply must work on any Clone of the Problem the Replacer was built from.

USAGE:
  r := engine.NewReplacer(problem)
  err := r.Apply(worker, draw)

RELATED FILES:
  - internal/model/types.go
  - internal/engine/runner.go
*/

package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daryltucker/reflstats/internal/model"
	"github.com/daryltucker/reflstats/internal/output"
)

// ErrLengthMismatch is returned when a draw does not match the fit parameter count.
var ErrLengthMismatch = errors.New("parameter list of wrong length")

type targetKind int

const (
	targetSkip targetKind = iota
	targetModel
	targetShared
)

type target struct {
	kind  targetKind
	model int
	layer string
	field model.Field
}

// Replacer writes draws back into a Problem.
type Replacer struct {
	targets    []target
	unresolved []string
}

// NewReplacer resolves every fit parameter name against the models of p.
func NewReplacer(p *model.Problem) *Replacer {
	r := &Replacer{targets: make([]target, len(p.Params))}
	modelIndex := make(map[string]int, len(p.Models))
	for i, m := range p.Models {
		modelIndex[m.Name] = i
	}

	for i, fp := range p.Params {
		t, ok := resolve(p, modelIndex, fp.Name)
		if !ok {
			r.unresolved = append(r.unresolved, fp.Name)
		}
		r.targets[i] = t
	}
	if len(r.unresolved) > 0 {
		output.Logger.Warn("Fit parameters without a matching layer will not be replayed", "names", r.unresolved)
	}
	return r
}

func resolve(p *model.Problem, modelIndex map[string]int, name string) (target, bool) {
	// Probe scalars are shared between models and held fixed.
	if name == string(model.Background) || name == string(model.Intensity) {
		return target{kind: targetSkip}, true
	}
	toks := strings.Fields(name)
	if len(toks) < 2 {
		return target{kind: targetSkip}, false
	}

	if mi, ok := modelIndex[toks[0]]; ok {
		if len(toks) < 3 {
			return target{kind: targetSkip}, false
		}
		f, ok := model.ParseField(strings.Join(toks[2:], " "))
		if !ok {
			return target{kind: targetSkip}, false
		}
		if _, ok := p.Models[mi].Layer(toks[1]); !ok {
			return target{kind: targetSkip}, false
		}
		return target{kind: targetModel, model: mi, layer: toks[1], field: f}, true
	}

	f, ok := model.ParseField(strings.Join(toks[1:], " "))
	if !ok {
		return target{kind: targetSkip}, false
	}
	for _, m := range p.Models {
		if _, ok := m.Layer(toks[0]); ok {
			return target{kind: targetShared, layer: toks[0], field: f}, true
		}
	}
	return target{kind: targetSkip}, false
}

// Len is the draw length the Replacer expects.
func (r *Replacer) Len() int {
	return len(r.targets)
}

// Unresolved lists the parameter names that are never replayed.
func (r *Replacer) Unresolved() []string {
	return r.unresolved
}

// Apply writes values into p, which must be the Problem the Replacer was
// built from or a clone of it.
func (r *Replacer) Apply(p *model.Problem, values []float64) error {
	if len(values) != len(r.targets) {
		return fmt.Errorf("%w: found %d and expected %d", ErrLengthMismatch, len(values), len(r.targets))
	}
	for i, t := range r.targets {
		switch t.kind {
		case targetModel:
			if l, ok := p.Models[t.model].Layer(t.layer); ok {
				l.Set(t.field, values[i])
			}
		case targetShared:
			for _, m := range p.Models {
				if l, ok := m.Layer(t.layer); ok {
					l.Set(t.field, values[i])
				}
			}
		}
	}
	return nil
}

// Replace resolves names and applies values in one call.
func Replace(p *model.Problem, values []float64) error {
	return NewReplacer(p).Apply(p, values)
}
