/*
PURPOSE:
  Defines the core data structures used throughout reflstats.
  These represent the layer stacks recovered from a refl1d fit log
  and the flat list of fitted parameters.

REQUIREMENTS:
  User-specified:
  - Layers keep the stacking order found in the log.
  - Layer fields (thickness, interface, rho, irho, magnetic sub-fields) are
    overwritten in place for every posterior draw.
  - The fit parameter list order is fixed at parse time.

  Implementation-discovered:
  - Field names appear in two spellings: dump attributes ("interface_above")
    and parameter names ("interfaceM above"). Both map onto one Field tag.
  - Workers need private copies of every model (Clone).

ARCHITECTURE INTEGRATION:
  - Produced by: internal/parser
  - Mutated by: internal/engine (Replacer)
  - Read by: internal/profile, internal/output

ERROR HANDLING:
  - None (pure data structs). Unknown field names are reported through ok-bools.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Never re-sort Problem.Params.

USAGE:
  l := &model.Layer{Name: "Cu"}
  l.Set(model.Thickness, 566.1)
  m.AddLayer(l)

SELF-HEALING INSTRUCTIONS:
  - If refl1d adds a new slab parameter, add a Field constant and extend fieldNames.

RELATED FILES:
  - internal/model/script.go
  - internal/parser/parser.go

MAINTENANCE:
  - Update when new layer or probe parameters need to be tracked.
*/

package model

import (
	"strings"
)

// Field identifies one scalar parameter of a layer.
type Field int

const (
	FieldUnknown Field = iota
	Thickness
	Interface
	Rho
	IRho
	RhoM
	ThetaM
	InterfaceAbove
	InterfaceBelow
	DeadAbove
	DeadBelow
)

var fieldNames = map[Field]string{
	Thickness:      "thickness",
	Interface:      "interface",
	Rho:            "rho",
	IRho:           "irho",
	RhoM:           "rhoM",
	ThetaM:         "thetaM",
	InterfaceAbove: "interface_above",
	InterfaceBelow: "interface_below",
	DeadAbove:      "dead_above",
	DeadBelow:      "dead_below",
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, len(fieldNames))
	for f, name := range fieldNames {
		m[name] = f
	}
	return m
}()

// Fields lists every known layer field.
var Fields = []Field{Thickness, Interface, Rho, IRho, RhoM, ThetaM, InterfaceAbove, InterfaceBelow, DeadAbove, DeadBelow}

// String returns the refl1d attribute name of the field.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// Magnetic reports whether the field only exists on magnetic layers.
func (f Field) Magnetic() bool {
	switch f {
	case RhoM, ThetaM, InterfaceAbove, InterfaceBelow, DeadAbove, DeadBelow:
		return true
	}
	return false
}

// FieldFromAttr maps a dump attribute name ("thickness", "interface_above") to its Field.
func FieldFromAttr(attr string) (Field, bool) {
	f, ok := fieldsByName[attr]
	return f, ok
}

// ParseField maps the field part of a parameter name to its Field.
// Magnetic interface and dead-layer names are written "interfaceM above"
// or "deadM below" in the log; runs of whitespace are tolerated.
func ParseField(key string) (Field, bool) {
	s := strings.Join(strings.Fields(key), " ")
	s = strings.ReplaceAll(s, "M ", "_")
	return FieldFromAttr(s)
}

// Layer is one material slab.
type Layer struct {
	Name      string
	Thickness float64
	Interface float64
	Rho       float64
	IRho      float64

	// Magnetic sub-fields are only meaningful when Magnetic is set.
	Magnetic       bool
	RhoM           float64
	ThetaM         float64
	InterfaceAbove float64
	InterfaceBelow float64
	DeadAbove      float64
	DeadBelow      float64
}

// Set overwrites a field. Setting any magnetic field marks the layer magnetic.
func (l *Layer) Set(f Field, v float64) bool {
	switch f {
	case Thickness:
		l.Thickness = v
	case Interface:
		l.Interface = v
	case Rho:
		l.Rho = v
	case IRho:
		l.IRho = v
	case RhoM:
		l.RhoM = v
	case ThetaM:
		l.ThetaM = v
	case InterfaceAbove:
		l.InterfaceAbove = v
	case InterfaceBelow:
		l.InterfaceBelow = v
	case DeadAbove:
		l.DeadAbove = v
	case DeadBelow:
		l.DeadBelow = v
	default:
		return false
	}
	if f.Magnetic() {
		l.Magnetic = true
	}
	return true
}

// Get returns the value of a field, zero for unknown fields.
func (l *Layer) Get(f Field) float64 {
	switch f {
	case Thickness:
		return l.Thickness
	case Interface:
		return l.Interface
	case Rho:
		return l.Rho
	case IRho:
		return l.IRho
	case RhoM:
		return l.RhoM
	case ThetaM:
		return l.ThetaM
	case InterfaceAbove:
		return l.InterfaceAbove
	case InterfaceBelow:
		return l.InterfaceBelow
	case DeadAbove:
		return l.DeadAbove
	case DeadBelow:
		return l.DeadBelow
	}
	return 0
}

// ProbeField names a model-level scalar read from the probe section.
type ProbeField string

const (
	Background ProbeField = "background"
	Intensity  ProbeField = "intensity"
	Aguide     ProbeField = "Aguide"
	H          ProbeField = "H"
)

// ProbeFieldFromName accepts only the four tracked probe scalars.
func ProbeFieldFromName(name string) (ProbeField, bool) {
	switch ProbeField(name) {
	case Background, Intensity, Aguide, H:
		return ProbeField(name), true
	}
	return "", false
}

// Model is one simultaneously-fit reflectivity model.
type Model struct {
	Name  string
	Chi2  float64
	Probe map[ProbeField]float64

	layers []*Layer
	index  map[string]int
}

// NewModel creates an empty model.
func NewModel(name string) *Model {
	return &Model{
		Name:  name,
		Probe: make(map[ProbeField]float64),
		index: make(map[string]int),
	}
}

// AddLayer appends a layer, or replaces a same-named layer in place.
func (m *Model) AddLayer(l *Layer) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[l.Name]; ok {
		m.layers[i] = l
		return
	}
	m.index[l.Name] = len(m.layers)
	m.layers = append(m.layers, l)
}

// Layer looks up a layer by name.
func (m *Model) Layer(name string) (*Layer, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.layers[i], true
}

// Layers returns the layers in stacking order.
func (m *Model) Layers() []*Layer {
	return m.layers
}

// LayerNames returns the layer names in stacking order.
func (m *Model) LayerNames() []string {
	names := make([]string, len(m.layers))
	for i, l := range m.layers {
		names[i] = l.Name
	}
	return names
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	c := NewModel(m.Name)
	c.Chi2 = m.Chi2
	for k, v := range m.Probe {
		c.Probe[k] = v
	}
	for _, l := range m.layers {
		cp := *l
		c.AddLayer(&cp)
	}
	return c
}

// FitParam is one free parameter of the overall fit.
type FitParam struct {
	Name        string  `json:"name"`
	Best        float64 `json:"best"`
	Uncertainty float64 `json:"uncertainty"`
}

// Problem is everything recovered from one fit log.
type Problem struct {
	Models []*Model
	Chi2   float64
	Params []FitParam
}

// Model looks up a model by name.
func (p *Problem) Model(name string) (*Model, bool) {
	for _, m := range p.Models {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// ModelNames returns the model names in log order.
func (p *Problem) ModelNames() []string {
	names := make([]string, len(p.Models))
	for i, m := range p.Models {
		names[i] = m.Name
	}
	return names
}

// Clone returns a deep copy. Params are shared since they are never mutated.
func (p *Problem) Clone() *Problem {
	c := &Problem{
		Models: make([]*Model, len(p.Models)),
		Chi2:   p.Chi2,
		Params: p.Params,
	}
	for i, m := range p.Models {
		c.Models[i] = m.Clone()
	}
	return c
}
