/*
PURPOSE:
  Writes the machine-readable summary of one run next to the profiles.

REQUIREMENTS:
  User-specified:
  - JSON output for easier parsing.

  Implementation-discovered:
  - Every run gets a uuid so summaries from repeated runs on the same fit
    can be told apart.
  - NaN is not valid JSON; nothing in the summary may carry one.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run
  - Consumes: internal/model.Problem, internal/profile.Accumulator

ERROR HANDLING:
  - Returns error on file creation or write failure.

USAGE:
  s := output.NewSummary(problem, logPath)
  s.AddModel(acc, "out/profile_T300.txt")
  err := output.WriteSummary(output.SummaryPath("out/profile.txt"), s)

RELATED FILES:
  - internal/engine/runner.go
*/

package output

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/reflstats/internal/model"
	"github.com/daryltucker/reflstats/internal/profile"
)

// ModelSummary describes one model's output.
type ModelSummary struct {
	Name        string   `json:"name"`
	Chi2        float64  `json:"chi2"`
	Layers      []string `json:"layers"`
	Draws       int      `json:"draws"`
	CountedBins int      `json:"counted_bins"`
	Profile     string   `json:"profile"`
}

// Summary describes one run.
type Summary struct {
	RunID     string           `json:"run_id"`
	Source    string           `json:"source"`
	StartedAt time.Time        `json:"started_at"`
	Elapsed   float64          `json:"elapsed_s"`
	Chi2      float64          `json:"chi2"`
	Draws     int              `json:"draws"`
	Outliers  int              `json:"outliers"`
	Workers   int              `json:"workers"`
	Engine    string           `json:"engine"`
	Grid      profile.Grid     `json:"grid"`
	Models    []ModelSummary   `json:"models"`
	Params    []model.FitParam `json:"params"`
	models    map[string]*model.Model
}

// NewSummary starts a summary for problem parsed from source.
func NewSummary(p *model.Problem, source string) *Summary {
	s := &Summary{
		RunID:     uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Chi2:      p.Chi2,
		Params:    p.Params,
		models:    make(map[string]*model.Model, len(p.Models)),
	}
	for _, m := range p.Models {
		s.models[m.Name] = m
	}
	return s
}

// AddModel records the accumulator of one model and the file it was written to.
func (s *Summary) AddModel(acc *profile.Accumulator, path string) {
	ms := ModelSummary{Name: acc.Name, Draws: acc.Draws, Profile: path}
	if m, ok := s.models[acc.Name]; ok {
		ms.Chi2 = m.Chi2
		ms.Layers = m.LayerNames()
	}
	for _, n := range acc.Count {
		if n > 0 {
			ms.CountedBins++
		}
	}
	s.Grid = acc.Grid
	s.Models = append(s.Models, ms)
}

// SummaryPath is "<base>_summary.json" for output path.
func SummaryPath(path string) string {
	return Base(path) + "_summary.json"
}

// WriteSummary writes s as indented JSON.
func WriteSummary(path string, s *Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
