package profile

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/reflstats/internal/model"
)

func sampleModel() *model.Model {
	m := model.NewModel("T300")
	m.AddLayer(&model.Layer{Name: "Si", Rho: 2.07})
	fe := &model.Layer{Name: "Fe", Thickness: 40, Rho: 8}
	fe.Set(model.RhoM, 5)
	fe.Set(model.ThetaM, 90)
	fe.Set(model.DeadBelow, 10)
	m.AddLayer(fe)
	m.AddLayer(&model.Layer{Name: "air"})
	return m
}

func TestStepEngineSharpProfile(t *testing.T) {
	e := StepEngine{DZ: 2, Margin: 20}
	p, err := e.Profile(context.Background(), sampleModel())
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, -20.0, p.Z[0])
	assert.Equal(t, 60.0, p.Z[len(p.Z)-1])
	require.Len(t, p.Z, 80)

	at := func(depth float64) int {
		for i := 0; i < len(p.Z); i += 2 {
			if depth >= p.Z[i] && depth < p.Z[i+1] {
				return i
			}
		}
		t.Fatalf("depth %g outside profile", depth)
		return -1
	}

	i := at(-5)
	assert.Equal(t, 2.07, p.Rho[i])
	assert.Equal(t, p.Rho[i], p.Rho[i+1])
	assert.Equal(t, 0.0, p.RhoM[i])
	assert.Equal(t, DefaultThetaM, p.ThetaM[i])

	i = at(5)
	assert.InDelta(t, 8.0, p.Rho[i], 1e-12)
	assert.Equal(t, 0.0, p.RhoM[i], "inside the dead layer")
	assert.Equal(t, 90.0, p.ThetaM[i])

	i = at(25)
	assert.Equal(t, 5.0, p.RhoM[i])

	i = at(50)
	assert.InDelta(t, 0.0, p.Rho[i], 1e-12)
	assert.Equal(t, 0.0, p.RhoM[i])
}

func TestStepEngineRoughness(t *testing.T) {
	m := sampleModel()
	si, _ := m.Layer("Si")
	si.Interface = 3

	p, err := StepEngine{DZ: 1, Margin: 20}.Profile(context.Background(), m)
	require.NoError(t, err)
	for i := 2; i < len(p.Z); i += 2 {
		if p.Z[i] < -8 {
			continue
		}
		if p.Z[i] > 8 {
			break
		}
		assert.Greater(t, p.Rho[i], p.Rho[i-2], "density must rise monotonically across the Si/Fe interface")
	}
}

func TestStepEngineErrors(t *testing.T) {
	_, err := StepEngine{DZ: 0, Margin: 10}.Profile(context.Background(), sampleModel())
	assert.Error(t, err)
	_, err = StepEngine{DZ: 1, Margin: 10}.Profile(context.Background(), model.NewModel("empty"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StepEngine{DZ: 1, Margin: 10}.Profile(ctx, sampleModel())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStepEngineFeedsAccumulator(t *testing.T) {
	p, err := StepEngine{DZ: 2, Margin: 50}.Profile(context.Background(), sampleModel())
	require.NoError(t, err)
	acc, err := NewAccumulator("T300", DefaultGrid())
	require.NoError(t, err)
	require.NoError(t, acc.Add(p.Z, p.Rho, p.RhoM))

	mean, _ := acc.Mean()
	magMean, _ := acc.MeanMagnetism()
	// Bin [20, 25) lies inside the magnetic part of Fe.
	j := int((20 - acc.Grid.ZMin) / acc.Grid.Step)
	assert.InDelta(t, 8, mean[j], 1e-9)
	assert.InDelta(t, 5, magMean[j], 1e-9)
}

func TestExecEngine(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	t.Run("reads profile from stdout", func(t *testing.T) {
		e := ExecEngine{
			Command: []string{sh, "-c", `cat >/dev/null; echo '{"z":[0,1,1,2],"rho":[1,1,2,2],"irho":[0,0,0,0],"rhoM":[0,0,0,0],"thetaM":[270,270,270,270]}'`},
			Timeout: 5 * time.Second,
		}
		p, err := e.Profile(context.Background(), sampleModel())
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1, 1, 2}, p.Z)
		assert.Equal(t, []float64{1, 1, 2, 2}, p.Rho)
	})

	t.Run("receives the model on stdin", func(t *testing.T) {
		e := ExecEngine{Command: []string{sh, "-c", `grep -q '"name":"T300"'`}}
		_, err := e.Profile(context.Background(), sampleModel())
		require.Error(t, err, "output is empty so decoding must fail")
		assert.Contains(t, err.Error(), "invalid JSON")
	})

	t.Run("failing command", func(t *testing.T) {
		e := ExecEngine{Command: []string{sh, "-c", "echo boom >&2; exit 3"}}
		_, err := e.Profile(context.Background(), sampleModel())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		e := ExecEngine{Command: []string{sh, "-c", `cat >/dev/null; echo '{"z":[0,1,1,2],"rho":[1,1],"irho":[0,0,0,0],"rhoM":[0,0,0,0],"thetaM":[0,0,0,0]}'`}}
		_, err := e.Profile(context.Background(), sampleModel())
		assert.Error(t, err)
	})

	t.Run("no command", func(t *testing.T) {
		_, err := ExecEngine{}.Profile(context.Background(), sampleModel())
		assert.Error(t, err)
	})
}
