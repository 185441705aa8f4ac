/*
PURPOSE:
  Defines the 'run' subcommand.
  Averages the depth profiles of a finished fit over its posterior.

REQUIREMENTS:
  User-specified:
  - Two required flags: output path and model base path (without the
    log suffix).
  - Flags for overrides.

  Implementation-discovered:
  - Need to load config first, then apply flag overrides, then validate.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails or engine run fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Dependencies -> Engine.Run.

USAGE:
  reflstats run -m fits/model152both -o profiles/profile.txt

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/runner.go
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/reflstats/internal/engine"
)

var (
	outputOverride   string
	modelOverride    string
	workersOverride  int
	maxDrawsOverride int
	engineOverride   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Average depth profiles over the posterior draws",
	Long: `Executes the full post-processing pipeline:
1. Parse: reads <model><log_suffix> for the models and the fit parameter table.
2. Draw: opens <model><state_suffix>, drops outlier chains and draws at most
   max_draws parameter vectors.
3. Profile: replays every draw onto the models, computes each model's depth
   profile and folds it into a per-model mean and standard deviation.

One file per model is written, named by inserting the model name before the
output extension (profile.txt -> profile_T300.txt), plus a JSON summary.`,
	Example: `  # Average the profiles of fits/model152both.err
  reflstats run -m fits/model152both -o profiles/profile.txt

  # Use 8 workers and an external profile script configured in reflstats.yaml
  reflstats run -m fits/model152both -o profiles/profile.txt --workers 8 --engine exec`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := loadConfig(modelOverride)
		if err != nil {
			return err
		}

		// 2. Overrides
		cfg.OutputBase = outputOverride
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workersOverride
		}
		if cmd.Flags().Changed("max-draws") {
			cfg.MaxDraws = maxDrawsOverride
		}
		if engineOverride != "" {
			cfg.Engine.Kind = engineOverride
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// 3. Execution
		ctx := cmd.Context()
		deps, err := engine.NewDependencies(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		res, err := engine.Run(ctx, cfg, deps)
		if err != nil {
			return err
		}
		for _, f := range res.Files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&outputOverride, "output", "o", "", "Output path; model names are inserted before its extension")
	runCmd.Flags().StringVarP(&modelOverride, "model", "m", "", "Model base path, without the log suffix")
	runCmd.Flags().IntVar(&workersOverride, "workers", 0, "Number of parallel draw workers (default: number of CPUs)")
	runCmd.Flags().IntVar(&maxDrawsOverride, "max-draws", 0, "Upper bound on the number of posterior draws (default 1000)")
	runCmd.Flags().StringVar(&engineOverride, "engine", "", "Profile engine: step or exec")
	_ = runCmd.MarkFlagRequired("output")
	_ = runCmd.MarkFlagRequired("model")
}
