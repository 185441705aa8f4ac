/*
PURPOSE:
  High-level runner that turns one finished fit into averaged depth
  profiles. Parse log -> draw posterior samples -> replay each draw onto
  the models -> profile -> accumulate -> report.

REQUIREMENTS:
  User-specified:
  - Parse the log once.
  - Mark outlier chains, then draw; more than max_draws draws are
    thinned to at most max_draws.
  - A draw of the wrong length aborts the run.
  - One output file per model, written only after every draw succeeded.

  Implementation-discovered:
  - Draws are independent: each worker owns a clone of the models and
    private accumulators, merged at the end.
  - Stored labels may disagree with the log's parameter names. Replay
    stays positional; the disagreement is only reported.
  - A model whose log has no sample section has nothing to profile. It
    is skipped with one warning and the other models are still written.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run)
  - Uses: internal/parser, internal/sampler, internal/profile, internal/output

ERROR HANDLING:
  - Fails fast: the first worker error cancels the others and is returned.
  - No report is written when any stage fails.

IMPLEMENTATION RULES:
  - Draws are split into contiguous shards, one per worker.

USAGE:
  deps, err := engine.NewDependencies(ctx, cfg)
  defer deps.Close()
  res, err := engine.Run(ctx, cfg, deps)

RELATED FILES:
  - internal/engine/replace.go
  - internal/profile/accumulator.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daryltucker/reflstats/internal/config"
	"github.com/daryltucker/reflstats/internal/model"
	"github.com/daryltucker/reflstats/internal/output"
	"github.com/daryltucker/reflstats/internal/parser"
	"github.com/daryltucker/reflstats/internal/profile"
	"github.com/daryltucker/reflstats/internal/sampler"
)

// Dependencies are the external collaborators of a run.
type Dependencies struct {
	Store  sampler.Store
	Engine profile.Engine
}

// Close releases the store.
func (d Dependencies) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}

// NewDependencies opens the sampler state and builds the profile engine named by cfg.
func NewDependencies(ctx context.Context, cfg *config.Config) (Dependencies, error) {
	eng, err := NewProfileEngine(cfg.Engine)
	if err != nil {
		return Dependencies{}, err
	}

	path := cfg.StatePath()
	if _, err := os.Stat(path); err != nil {
		return Dependencies{}, fmt.Errorf("sampler state %s: %w", path, err)
	}
	st, err := sampler.Open(ctx, "sqlite", path)
	if err != nil {
		return Dependencies{}, err
	}
	return Dependencies{Store: st, Engine: eng}, nil
}

// NewProfileEngine builds the engine described by ec.
func NewProfileEngine(ec config.EngineConfig) (profile.Engine, error) {
	switch ec.Kind {
	case config.EngineStep:
		return profile.StepEngine{DZ: ec.DZ, Margin: ec.Margin}, nil
	case config.EngineExec:
		return profile.ExecEngine{Command: ec.Command, Timeout: ec.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", ec.Kind)
	}
}

// Result is what a run produced.
type Result struct {
	Problem      *model.Problem
	Accumulators []*profile.Accumulator
	Draws        int
	Outliers     int
	Workers      int
	Files        []string
}

// Run executes the full pipeline for cfg.ModelBase.
func Run(ctx context.Context, cfg *config.Config, deps Dependencies) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Engine == nil {
		return nil, errors.New("run needs a sampler store and a profile engine")
	}
	start := time.Now()

	// 1. Parse
	logPath := cfg.LogPath()
	problem, err := parser.ParseFile(logPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fit log %s not found: %w", logPath, err)
		}
		return nil, err
	}
	if len(problem.Models) == 0 {
		return nil, fmt.Errorf("fit log %s describes no models", logPath)
	}
	names := make([]string, len(problem.Params))
	for i, p := range problem.Params {
		names[i] = p.Name
	}
	output.Logger.Info("Parsed fit log", "path", logPath, "models", problem.ModelNames(), "params", len(names), "chi2", problem.Chi2)
	profiled := profiledModels(problem)
	if len(profiled) == 0 {
		return nil, fmt.Errorf("fit log %s has no model with a sample section", logPath)
	}

	// 2. Draw
	res := &Result{Problem: problem}
	draws, err := drawSamples(ctx, cfg, deps.Store, names, res)
	if err != nil {
		return nil, err
	}
	if draws.Width() != len(names) {
		return nil, fmt.Errorf("%w: %w: draws have %d values, the log lists %d parameters",
			sampler.ErrWidthMismatch, ErrLengthMismatch, draws.Width(), len(names))
	}
	res.Draws = draws.Len()

	// 3. Profile and accumulate
	res.Accumulators, res.Workers, err = accumulate(ctx, cfg, deps.Engine, problem, profiled, draws.Points)
	if err != nil {
		return nil, err
	}
	output.Logger.Info("All draws processed", "draws", res.Draws, "elapsed", time.Since(start).Round(time.Millisecond))

	// 4. Report
	if err := report(cfg, res, start); err != nil {
		return nil, err
	}
	return res, nil
}

func drawSamples(ctx context.Context, cfg *config.Config, st sampler.Store, names []string, res *Result) (sampler.Draws, error) {
	labels, err := st.Labels(ctx)
	if err != nil {
		return sampler.Draws{}, fmt.Errorf("read sampler labels: %w", err)
	}
	if len(labels) > 0 && !slices.Equal(labels, names) {
		output.Logger.Warn("Sampler labels differ from the fit log; draws are replayed by position",
			"stored", len(labels), "parsed", len(names))
	}

	if cfg.OutlierTest == config.OutlierIQR {
		n, err := st.MarkOutliers(ctx)
		if err != nil {
			return sampler.Draws{}, fmt.Errorf("mark outliers: %w", err)
		}
		res.Outliers = n
		if n > 0 {
			output.Logger.Info("Outlier chains excluded", "chains", n)
		}
	}

	draws, err := st.Draw(ctx, 1)
	if err != nil {
		return sampler.Draws{}, fmt.Errorf("draw samples: %w", err)
	}
	if draws.Len() > cfg.MaxDraws {
		portion := float64(cfg.MaxDraws) / float64(draws.Len())
		output.Logger.Info("Sub-sampling draws", "available", draws.Len(), "portion", portion)
		draws, err = st.Draw(ctx, portion)
		if err != nil {
			return sampler.Draws{}, fmt.Errorf("draw samples: %w", err)
		}
		draws.Points = thin(draws.Points, cfg.MaxDraws)
	}
	if draws.Len() == 0 {
		return sampler.Draws{}, sampler.ErrNoDraws
	}
	return draws, nil
}

// thin keeps at most n evenly spaced points.
func thin(points [][]float64, n int) [][]float64 {
	if len(points) <= n {
		return points
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = points[i*len(points)/n]
	}
	return out
}

// profiledModels returns the indices of the models that have layers and
// warns once about the rest.
func profiledModels(problem *model.Problem) []int {
	var idx []int
	var skipped []string
	for i, m := range problem.Models {
		if len(m.Layers()) == 0 {
			skipped = append(skipped, m.Name)
			continue
		}
		idx = append(idx, i)
	}
	if len(skipped) > 0 {
		output.Logger.Warn("Skipping models without a sample section", "models", skipped)
	}
	return idx
}

// accumulate profiles the models at idx for every draw and returns their
// accumulators together with the number of workers used.
func accumulate(ctx context.Context, cfg *config.Config, eng profile.Engine, problem *model.Problem, idx []int, draws [][]float64) ([]*profile.Accumulator, int, error) {
	replacer := NewReplacer(problem)
	total, err := newAccumulators(problem, idx, cfg.Grid)
	if err != nil {
		return nil, 0, err
	}

	workers := max(1, min(cfg.Workers, len(draws)))
	partials := make([][]*profile.Accumulator, workers)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		shard := draws[w*len(draws)/workers : (w+1)*len(draws)/workers]
		g.Go(func() error {
			accs, err := runShard(gctx, cfg, eng, replacer, problem, idx, shard, &done, len(draws))
			partials[w] = accs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	for _, accs := range partials {
		for i, acc := range accs {
			if err := total[i].Merge(acc); err != nil {
				return nil, 0, err
			}
		}
	}
	return total, workers, nil
}

func newAccumulators(problem *model.Problem, idx []int, grid profile.Grid) ([]*profile.Accumulator, error) {
	accs := make([]*profile.Accumulator, len(idx))
	for i, mi := range idx {
		acc, err := profile.NewAccumulator(problem.Models[mi].Name, grid)
		if err != nil {
			return nil, err
		}
		accs[i] = acc
	}
	return accs, nil
}

func runShard(ctx context.Context, cfg *config.Config, eng profile.Engine, r *Replacer, problem *model.Problem, idx []int, shard [][]float64, done *atomic.Int64, total int) ([]*profile.Accumulator, error) {
	local := problem.Clone()
	accs, err := newAccumulators(local, idx, cfg.Grid)
	if err != nil {
		return nil, err
	}

	for _, draw := range shard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.Apply(local, draw); err != nil {
			return nil, err
		}
		for i, mi := range idx {
			m := local.Models[mi]
			p, err := eng.Profile(ctx, m)
			if err != nil {
				return nil, fmt.Errorf("profile model %s: %w", m.Name, err)
			}
			if err := accs[i].Add(p.Z, p.Rho, p.RhoM); err != nil {
				return nil, fmt.Errorf("accumulate model %s: %w", m.Name, err)
			}
		}
		if n := done.Add(1); cfg.ProgressEvery > 0 && n%int64(cfg.ProgressEvery) == 0 {
			output.Logger.Info("Progress", "draws", n, "of", total)
		}
	}
	return accs, nil
}

func report(cfg *config.Config, res *Result, start time.Time) error {
	if dir := filepath.Dir(cfg.OutputBase); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	summary := output.NewSummary(res.Problem, cfg.LogPath())
	summary.StartedAt = start.UTC()
	summary.Draws = res.Draws
	summary.Outliers = res.Outliers
	summary.Workers = res.Workers
	summary.Engine = cfg.Engine.Kind
	summary.Grid = cfg.Grid

	for _, acc := range res.Accumulators {
		path := output.ProfilePath(cfg.OutputBase, acc.Name)
		if err := output.WriteProfile(path, acc); err != nil {
			return err
		}
		output.Logger.Info("Wrote profile", "model", acc.Name, "path", path)
		res.Files = append(res.Files, path)
		summary.AddModel(acc, path)
	}

	if cfg.Summary {
		summary.Elapsed = time.Since(start).Seconds()
		path := output.SummaryPath(cfg.OutputBase)
		if err := output.WriteSummary(path, summary); err != nil {
			return fmt.Errorf("write summary %s: %w", path, err)
		}
		res.Files = append(res.Files, path)
	}
	return nil
}
