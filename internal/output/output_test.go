package output

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/reflstats/internal/model"
	"github.com/daryltucker/reflstats/internal/profile"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "out/profile_T300.txt", ProfilePath("out/profile.txt", "T300"))
	assert.Equal(t, "out/profile_T300", ProfilePath("out/profile", "T300"))
	assert.Equal(t, "out/profile_summary.json", SummaryPath("out/profile.txt"))
}

func filledAccumulator(t *testing.T) *profile.Accumulator {
	t.Helper()
	acc, err := profile.NewAccumulator("T300", profile.Grid{ZMin: 0, ZMax: 25, Step: 5})
	require.NoError(t, err)
	for _, c := range []float64{1, 3} {
		z := []float64{-10, 0, 0, 10, 10, 20, 20, 30}
		rho := []float64{c, c, c, c, c, c, c, c}
		rhoM := make([]float64, len(z))
		require.NoError(t, acc.Add(z, rho, rhoM))
	}
	return acc
}

func TestFormatProfile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatProfile(&buf, filledAccumulator(t)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "0 2 1 0 0", lines[0])
	assert.Equal(t, "15 2 1 0 0", lines[3])
	for _, l := range lines {
		assert.Len(t, strings.Fields(l), 5)
	}
}

func TestFormatProfileNaN(t *testing.T) {
	acc, err := profile.NewAccumulator("empty", profile.Grid{ZMin: 0, ZMax: 15, Step: 5})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, FormatProfile(&buf, acc))
	assert.Equal(t, "0 NaN NaN NaN NaN\n5 NaN NaN NaN NaN\n", buf.String())
}

func TestWriteProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile_T300.txt")
	require.NoError(t, WriteProfile(path, filledAccumulator(t)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "0 2 1 0 0\n"))

	assert.Error(t, WriteProfile(filepath.Join(t.TempDir(), "missing", "x.txt"), filledAccumulator(t)))
}

func sampleProblem() *model.Problem {
	m := model.NewModel("T300")
	m.Chi2 = 1.52
	m.AddLayer(&model.Layer{Name: "Si"})
	m.AddLayer(&model.Layer{Name: "air"})
	return &model.Problem{
		Models: []*model.Model{m},
		Chi2:   1.77,
		Params: []model.FitParam{
			{Name: "intensity", Best: 1.1, Uncertainty: 0.02},
			{Name: "MGN_2 thickness", Best: 20.52, Uncertainty: 0.8},
		},
	}
}

func TestSummary(t *testing.T) {
	s := NewSummary(sampleProblem(), "fits/model152both.err")
	s.Draws = 2
	s.Workers = 4
	s.AddModel(filledAccumulator(t), "out/profile_T300.txt")

	path := filepath.Join(t.TempDir(), "profile_summary.json")
	require.NoError(t, WriteSummary(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Len(t, got["run_id"], 36)
	assert.Equal(t, "fits/model152both.err", got["source"])
	assert.Equal(t, 1.77, got["chi2"])
	assert.Equal(t, 4.0, got["workers"])

	models := got["models"].([]any)
	require.Len(t, models, 1)
	m := models[0].(map[string]any)
	assert.Equal(t, "T300", m["name"])
	assert.Equal(t, 1.52, m["chi2"])
	assert.Equal(t, []any{"Si", "air"}, m["layers"])
	assert.Equal(t, 4.0, m["counted_bins"])

	params := got["params"].([]any)
	assert.Equal(t, "MGN_2 thickness", params[1].(map[string]any)["name"])
}

func TestParamsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatParamsCSV(&buf, sampleProblem().Params))
	assert.Equal(t, "index,name,best,uncertainty\n0,intensity,1.1,0.02\n1,MGN_2 thickness,20.52,0.8\n", buf.String())

	path := filepath.Join(t.TempDir(), "params.csv")
	require.NoError(t, WriteParamsCSV(path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index,name,best,uncertainty\n", string(data))
}

func TestSetVerbose(t *testing.T) {
	t.Cleanup(func() { SetVerbose(false) })

	assert.False(t, Logger.Enabled(context.Background(), slog.LevelDebug))
	SetVerbose(true)
	assert.True(t, Logger.Enabled(context.Background(), slog.LevelDebug))
	SetVerbose(false)
	assert.False(t, Logger.Enabled(context.Background(), slog.LevelDebug))
}
