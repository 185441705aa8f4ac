/*
PURPOSE:
  Defines the root Cobra command for the reflstats CLI.
  Handles global flags and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Long runs must stop cleanly on Ctrl-C, so commands get a context
    cancelled by SIGINT/SIGTERM.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/reflstats/main.go
  - Calls: Child commands (run, inspect, import-draws)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

USAGE:
  Called by main.go.

RELATED FILES:
  - cmd/reflstats/main.go
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/reflstats/internal/config"
	"github.com/daryltucker/reflstats/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "reflstats",
		Short: "Post-process refl1d fits into averaged depth profiles",
		Long: `Reads the log of a finished refl1d fit together with its saved DREAM
sampler state and writes, per model, the mean and spread of the depth
profile over the posterior. Use 'run --help' for options.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			output.SetVerbose(verbose)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./reflstats.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}

// loadConfig loads the config file and applies the model base flag.
func loadConfig(modelBase string) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if modelBase != "" {
		cfg.ModelBase = modelBase
	}
	return cfg, nil
}
