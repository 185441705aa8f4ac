package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Material renders the refl1d SLD declaration of the layer.
func (l *Layer) Material() string {
	return fmt.Sprintf("%s = SLD(name='%s', rho=%s, irho=%s)", l.Name, l.Name, num(l.Rho), num(l.IRho))
}

// Slab renders the refl1d slab expression of the layer.
func (l *Layer) Slab() string {
	if !l.Magnetic {
		return fmt.Sprintf("%s(%s, %s)", l.Name, num(l.Thickness), num(l.Interface))
	}
	mag := fmt.Sprintf("rhoM=%s, thetaM=%s, interface_above=%s, interface_below=%s, dead_above=%s, dead_below=%s",
		num(l.RhoM), num(l.ThetaM), num(l.InterfaceAbove), num(l.InterfaceBelow), num(l.DeadAbove), num(l.DeadBelow))
	return fmt.Sprintf("%s(%s, %s, magnetism=Magnetism(%s))", l.Name, num(l.Thickness), num(l.Interface), mag)
}

// Script renders the model as a refl1d sample definition.
func (m *Model) Script() string {
	var b strings.Builder
	slabs := make([]string, 0, len(m.layers))
	for _, l := range m.layers {
		b.WriteString(l.Material())
		b.WriteByte('\n')
		slabs = append(slabs, l.Slab())
	}
	fmt.Fprintf(&b, "sample = (%s)", strings.Join(slabs, "\n    | "))
	return b.String()
}

var (
	plainFields    = []Field{Interface, IRho, Rho, Thickness}
	magneticFields = []Field{DeadAbove, DeadBelow, InterfaceAbove, InterfaceBelow, RhoM, ThetaM}
)

func (m *Model) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "----- Model: %s    [chi2=%s]\n", m.Name, num(m.Chi2))

	keys := make([]string, 0, len(m.Probe))
	for k := range m.Probe {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "   %15s\t %s\n", k, num(m.Probe[ProbeField(k)]))
	}
	b.WriteByte('\n')

	for _, l := range m.layers {
		fmt.Fprintf(&b, "Layer %s:  \n    ", l.Name)
		for _, f := range plainFields {
			fmt.Fprintf(&b, "%s=%s, ", f, num(l.Get(f)))
		}
		b.WriteString("\n    ")
		if l.Magnetic {
			for _, f := range magneticFields {
				fmt.Fprintf(&b, "%s=%s, ", f, num(l.Get(f)))
			}
		}
		b.WriteString("\n\n")
	}
	b.WriteByte('\n')
	return b.String()
}

func (p *Problem) String() string {
	var b strings.Builder
	for _, m := range p.Models {
		b.WriteString(m.String())
	}
	for i, fp := range p.Params {
		fmt.Fprintf(&b, "%d- [%s, %s, %s]\n", i, fp.Name, num(fp.Best), num(fp.Uncertainty))
	}
	return b.String()
}
