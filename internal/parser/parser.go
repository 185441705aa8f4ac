/*
PURPOSE:
  Recovers the models of a refl1d fit from its text log (the ".err" file).
  The log dumps every model as an indented object tree and ends with the
  DREAM statistics table:

    -- Model 0 T300
    .probe
      .background = Parameter(1e-06, name='background')
    .sample
      .layers
        [0]
          .interface = Parameter(1.46935, name='Si interface', bounds=(1,5))
          .material
            .irho = Parameter(0, name='Si irho')
            .rho = Parameter(2.07, name='Si rho')
          .thickness = Parameter(0, name='Si thickness')
    [chisq=1.52(12), nllf=120.3]

REQUIREMENTS:
  User-specified:
  - One Model per "-- Model N" block, named from the SIMULTANEOUS list.
  - Layers in log order, fields from the ten known slab attributes.
  - Probe scalars background, intensity, Aguide and H only.
  - Every statistics row becomes a FitParam, in log order.

  Implementation-discovered:
  - Per-model rows are named "<model> <layer> <field>". The first token of
    such rows renames models in order, which covers logs whose SIMULTANEOUS
    line is missing.
  - "above"/"below" qualifiers must not count as name tokens.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run, internal/cli (inspect)
  - Produces: *model.Problem

ERROR HANDLING:
  - Unrecognised lines are skipped silently.
  - A missing section leaves the corresponding structure empty.
  - Only I/O errors are returned.

IMPLEMENTATION RULES:
  - All scratch state lives in State; Step advances it one line at a time.
  - Step never mutates its input: models and layers are copied before a
    change and slices are clipped before an append.
  - Markers are line prefixes, never indentation depth.

USAGE:
  problem, err := parser.ParseFile("model152both.err")

SELF-HEALING INSTRUCTIONS:
  - If refl1d changes its dump layout, adjust the marker constants first.

RELATED FILES:
  - internal/parser/uncertainty.go
  - internal/model/types.go

MAINTENANCE:
  - Update when new probe scalars need to be tracked.
*/

package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/daryltucker/reflstats/internal/model"
)

// Section is the part of a model dump the parser is in.
type Section int

const (
	Outside Section = iota
	InProbe
	InSample
)

func (s Section) String() string {
	switch s {
	case InProbe:
		return "probe"
	case InSample:
		return "sample"
	default:
		return "outside"
	}
}

const (
	markerSimultaneous = "SIMULTANEOUS"
	markerModel        = "-- Model"
	markerProbe        = ".probe"
	markerSample       = ".sample"
	markerChisq        = "[chisq="
	markerOverall      = "[overall chisq="

	// Used before any "-- Model" marker, for single-model logs.
	defaultModelName = "none"
)

var (
	modelStart = regexp.MustCompile(`^-- Model (\d+)`)
	chisqValue = regexp.MustCompile(`chisq=([\d.]*)`)
	layerIndex = regexp.MustCompile(`\[(\d+)\]`)
	probeParam = regexp.MustCompile(`.(\w*) = Parameter\((.*), name='(\w*)'`)
	slabParam  = regexp.MustCompile(`\.(interface|irho|rho|thickness|dead_above|dead_below|interface_above|interface_below|rhoM|thetaM) = Parameter\((.*), name='([\w ]*)'`)
)

// State is the parser state between two lines.
type State struct {
	Section    Section
	Names      []string
	Discovered []string
	Models     []*model.Model
	Chi2       float64
	Params     []model.FitParam

	current     *model.Model
	layer       *model.Layer
	layerFields int
}

// NewState returns the state before the first line.
func NewState() State {
	return State{current: model.NewModel(defaultModelName)}
}

// Step consumes one line and returns the updated state. The input state is
// left unchanged, so an earlier state can be stepped again.
func Step(s State, line string) State {
	line = strings.TrimRight(line, "\r")
	s = structure(s, line)
	if est, ok := DecodeLine(line); ok {
		s = addParam(s, est)
	}
	return s
}

func structure(s State, line string) State {
	switch {
	case strings.HasPrefix(line, markerChisq):
		if s.current == nil {
			s.Section = Outside
			return s
		}
		if m := chisqValue.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				s.current = s.current.Clone()
				s.current.Chi2 = v
			}
		}
		s = commitLayer(s)
		s.Models = append(slices.Clip(s.Models), s.current)
		s.current = nil
		s.Section = Outside
		return s

	case strings.HasPrefix(line, markerOverall):
		if m := chisqValue.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				s.Chi2 = v
			}
		}
		return s

	case strings.HasPrefix(line, markerSimultaneous):
		var names []string
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, markerSimultaneous+" ")), &names); err == nil {
			s.Names = names
		}
		return s

	case strings.HasPrefix(line, markerModel):
		m := modelStart.FindStringSubmatch(line)
		if m == nil {
			return s
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return s
		}
		name := m[1]
		if idx < len(s.Names) {
			name = s.Names[idx]
		}
		s.current = model.NewModel(name)
		s.layer = nil
		s.layerFields = 0
		s.Section = Outside
		return s

	case strings.HasPrefix(line, markerProbe):
		s.Section = InProbe
		return s

	case strings.HasPrefix(line, markerSample):
		s.Section = InSample
		return s
	}

	if s.current == nil {
		return s
	}
	switch s.Section {
	case InProbe:
		m := probeParam.FindStringSubmatch(line)
		if m == nil {
			return s
		}
		f, ok := model.ProbeFieldFromName(m[1])
		if !ok {
			return s
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64); err == nil {
			s.current = s.current.Clone()
			s.current.Probe[f] = v
		}
	case InSample:
		if layerIndex.MatchString(line) {
			s = commitLayer(s)
		}
		m := slabParam.FindStringSubmatch(line)
		if m == nil {
			return s
		}
		f, ok := model.FieldFromAttr(m[1])
		if !ok {
			return s
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
		if err != nil {
			return s
		}
		layer := model.Layer{}
		if s.layer != nil {
			layer = *s.layer
		}
		s.layer = &layer
		if s.layer.Name == "" {
			if toks := strings.Fields(m[3]); len(toks) > 0 {
				s.layer.Name = toks[0]
			}
		}
		s.layer.Set(f, v)
		s.layerFields++
	}
	return s
}

func commitLayer(s State) State {
	if s.layer != nil && s.layerFields > 0 && s.current != nil {
		l := *s.layer
		s.current = s.current.Clone()
		s.current.AddLayer(&l)
	}
	s.layer = nil
	s.layerFields = 0
	return s
}

func addParam(s State, est Estimate) State {
	s.Params = append(slices.Clip(s.Params), model.FitParam{Name: est.Name, Best: est.Best, Uncertainty: est.Uncertainty})

	stripped := strings.NewReplacer("above", "", "below", "").Replace(est.Name)
	if len(strings.Fields(stripped)) < 3 {
		return s
	}
	first := strings.Fields(est.Name)[0]
	for _, n := range s.Discovered {
		if n == first {
			return s
		}
	}
	s.Discovered = append(slices.Clip(s.Discovered), first)
	return s
}

// Finish closes the parse. Discovered model names replace the seeded ones in
// order, and models sharing a name collapse onto the last one seen. The
// Problem owns copies of the models, so s stays usable.
func Finish(s State) *model.Problem {
	p := &model.Problem{Chi2: s.Chi2, Params: slices.Clone(s.Params)}
	seen := make(map[string]int, len(s.Models))
	for i, m := range s.Models {
		m = m.Clone()
		if i < len(s.Discovered) {
			m.Name = s.Discovered[i]
		}
		if j, ok := seen[m.Name]; ok {
			p.Models[j] = m
			continue
		}
		seen[m.Name] = len(p.Models)
		p.Models = append(p.Models, m)
	}
	return p
}

// Parse reads a whole log.
func Parse(r io.Reader) (*model.Problem, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	s := NewState()
	for sc.Scan() {
		s = Step(s, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fit log: %w", err)
	}
	return Finish(s), nil
}

// ParseString parses log text held in memory.
func ParseString(content string) (*model.Problem, error) {
	return Parse(strings.NewReader(content))
}

// ParseFile parses the log at path.
func ParseFile(path string) (*model.Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fit log %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}
