/*
PURPOSE:
  Defines the configuration structure and loading logic for reflstats.
  Config IS Code: every tunable of a run lives here.

REQUIREMENTS:
  User-specified:
  - Locate the fit log and sampler state from the model base path.
  - Bound the number of draws, choose parallelism and the output grid.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - The profile engine is pluggable (built-in step engine or an external
    command), so it gets its own section.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - A missing default file is not an error; defaults apply.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Validate() is called after CLI overrides are applied.

USAGE:
  cfg, err := config.Load("reflstats.yaml")

RELATED FILES:
  - internal/cli/root.go
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/reflstats/internal/profile"
)

// Outlier tests understood by the sampler state.
const (
	OutlierIQR  = "iqr"
	OutlierNone = "none"
)

// Profile engine kinds.
const (
	EngineStep = "step"
	EngineExec = "exec"
)

// DefaultFiles are searched, in order, when no config path is given.
var DefaultFiles = []string{"reflstats.yaml", "reflstats.yml", ".reflstats.yaml"}

// Config represents the full configuration for a run.
type Config struct {
	// ModelBase is the path prefix shared by the fit log and the sampler state.
	ModelBase string `yaml:"model"`
	// OutputBase is the path prefix of the written reports.
	OutputBase string `yaml:"output"`

	LogSuffix     string       `yaml:"log_suffix"`
	StateSuffix   string       `yaml:"state_suffix"`
	MaxDraws      int          `yaml:"max_draws"`
	Workers       int          `yaml:"workers"`
	ProgressEvery int          `yaml:"progress_every"`
	OutlierTest   string       `yaml:"outlier_test"`
	Grid          profile.Grid `yaml:"grid"`
	Engine        EngineConfig `yaml:"engine"`
	Summary       bool         `yaml:"summary"`
}

// EngineConfig selects and tunes the profile engine.
type EngineConfig struct {
	Kind    string        `yaml:"kind"`
	DZ      float64       `yaml:"dz"`
	Margin  float64       `yaml:"margin"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogSuffix:     ".err",
		StateSuffix:   ".db",
		MaxDraws:      1000,
		Workers:       runtime.NumCPU(),
		ProgressEvery: 100,
		OutlierTest:   OutlierIQR,
		Grid:          profile.DefaultGrid(),
		Engine: EngineConfig{
			Kind:    EngineStep,
			DZ:      2,
			Margin:  50,
			Timeout: 30 * time.Second,
		},
		Summary: true,
	}
}

// Load reads configuration from a file.
// If path is empty, the first of DefaultFiles that exists is used.
// If no file is found, the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		found := false
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				found = true
				break
			}
		}
		if !found {
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// LogPath is the fit log location.
func (c *Config) LogPath() string { return c.ModelBase + c.LogSuffix }

// StatePath is the sampler state location.
func (c *Config) StatePath() string { return c.ModelBase + c.StateSuffix }

// Validate checks the configuration is usable for a run.
func (c *Config) Validate() error {
	var errs []error
	if c.ModelBase == "" {
		errs = append(errs, errors.New("model base path is required"))
	}
	if c.OutputBase == "" {
		errs = append(errs, errors.New("output base path is required"))
	}
	if c.MaxDraws < 1 {
		errs = append(errs, fmt.Errorf("max_draws must be positive, got %d", c.MaxDraws))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.OutlierTest != OutlierIQR && c.OutlierTest != OutlierNone {
		errs = append(errs, fmt.Errorf("unknown outlier_test %q", c.OutlierTest))
	}
	if _, err := c.Grid.Edges(); err != nil {
		errs = append(errs, fmt.Errorf("grid: %w", err))
	}
	switch c.Engine.Kind {
	case EngineStep:
		if c.Engine.DZ <= 0 {
			errs = append(errs, fmt.Errorf("engine.dz must be positive, got %g", c.Engine.DZ))
		}
	case EngineExec:
		if len(c.Engine.Command) == 0 {
			errs = append(errs, errors.New("engine.command is required for the exec engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown engine kind %q", c.Engine.Kind))
	}
	return errors.Join(errs...)
}
