package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseField(t *testing.T) {
	cases := []struct {
		in   string
		want Field
		ok   bool
	}{
		{"thickness", Thickness, true},
		{"interface", Interface, true},
		{"rho", Rho, true},
		{"irho", IRho, true},
		{"rhoM", RhoM, true},
		{"thetaM", ThetaM, true},
		{"interfaceM above", InterfaceAbove, true},
		{" interfaceM   below ", InterfaceBelow, true},
		{"deadM above", DeadAbove, true},
		{"deadM below", DeadBelow, true},
		{"interface_above", InterfaceAbove, true},
		{"dead_below", DeadBelow, true},
		{"background", FieldUnknown, false},
		{"", FieldUnknown, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseField(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLayerSet(t *testing.T) {
	t.Run("plain fields keep layer non-magnetic", func(t *testing.T) {
		l := &Layer{Name: "Cu"}
		for _, f := range []Field{Thickness, Interface, Rho, IRho} {
			require.True(t, l.Set(f, 3))
			assert.Equal(t, 3.0, l.Get(f))
		}
		assert.False(t, l.Magnetic)
	})

	t.Run("magnetic field flips the flag", func(t *testing.T) {
		l := &Layer{Name: "MGN_1"}
		require.True(t, l.Set(DeadBelow, 4))
		assert.True(t, l.Magnetic)
		assert.Equal(t, 4.0, l.DeadBelow)
		assert.Zero(t, l.RhoM)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		l := &Layer{Name: "Si"}
		assert.False(t, l.Set(FieldUnknown, 1))
		assert.Equal(t, Layer{Name: "Si"}, *l)
	})
}

func TestModelLayersKeepOrder(t *testing.T) {
	m := NewModel("T300")
	m.AddLayer(&Layer{Name: "Si"})
	m.AddLayer(&Layer{Name: "MGN_1"})
	m.AddLayer(&Layer{Name: "air"})
	m.AddLayer(&Layer{Name: "MGN_1", Thickness: 12})

	assert.Equal(t, []string{"Si", "MGN_1", "air"}, m.LayerNames())
	l, ok := m.Layer("MGN_1")
	require.True(t, ok)
	assert.Equal(t, 12.0, l.Thickness)

	_, ok = m.Layer("Cu")
	assert.False(t, ok)
}

func TestProblemClone(t *testing.T) {
	m := NewModel("T300")
	m.Probe[Background] = 1e-6
	m.AddLayer(&Layer{Name: "MGN_2", Thickness: 20})
	p := &Problem{Models: []*Model{m}, Chi2: 1.5, Params: []FitParam{{Name: "MGN_2 thickness", Best: 20}}}

	c := p.Clone()
	l, _ := c.Models[0].Layer("MGN_2")
	l.Thickness = 99
	c.Models[0].Probe[Background] = 2

	orig, _ := p.Models[0].Layer("MGN_2")
	assert.Equal(t, 20.0, orig.Thickness)
	assert.Equal(t, 1e-6, p.Models[0].Probe[Background])
	assert.Equal(t, p.Params, c.Params)
	assert.Equal(t, 1.5, c.Chi2)
}

func TestRender(t *testing.T) {
	si := &Layer{Name: "Si", Rho: 2.07}
	mgn := &Layer{Name: "MGN_1", Thickness: 50, Interface: 1, Rho: 1.76}
	mgn.Set(RhoM, 0.1)
	mgn.Set(ThetaM, 270)

	assert.Equal(t, "Si = SLD(name='Si', rho=2.07, irho=0)", si.Material())
	assert.Equal(t, "Si(0, 0)", si.Slab())
	assert.Equal(t,
		"MGN_1(50, 1, magnetism=Magnetism(rhoM=0.1, thetaM=270, interface_above=0, interface_below=0, dead_above=0, dead_below=0))",
		mgn.Slab())

	m := NewModel("T300")
	m.AddLayer(si)
	m.AddLayer(mgn)
	script := m.Script()
	assert.Contains(t, script, "MGN_1 = SLD(name='MGN_1', rho=1.76, irho=0)\n")
	assert.Contains(t, script, "sample = (Si(0, 0)\n    | MGN_1(50, 1, magnetism=")
	assert.Contains(t, m.String(), "----- Model: T300    [chi2=0]")
}
