/*
PURPOSE:
  Defines the 'inspect' subcommand.
  Shows what the parser recovers from a fit log, without touching the
  sampler state. Helps debug logs before a full run.

REQUIREMENTS:
  User-specified:
  - Print the models and the fit parameter table.

  Implementation-discovered:
  - Watching a fit while it runs is handy: --watch re-prints after every
    rewrite of the log.

ARCHITECTURE INTEGRATION:
  - Calls: internal/parser, internal/output (CSV)

ERROR HANDLING:
  - A log that fails to parse while watching is reported and the watch
    continues.

USAGE:
  reflstats inspect -m fits/model152both
  reflstats inspect -m fits/model152both --csv params.csv --watch

RELATED FILES:
  - internal/parser/watch.go
*/

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daryltucker/reflstats/internal/model"
	"github.com/daryltucker/reflstats/internal/output"
	"github.com/daryltucker/reflstats/internal/parser"
)

var (
	inspectModel string
	inspectCSV   string
	inspectWatch bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the models and fit parameters parsed from a fit log",
	Example: `  reflstats inspect -m fits/model152both
  reflstats inspect -m fits/model152both --csv params.csv
  reflstats inspect -m fits/model152both --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(inspectModel)
		if err != nil {
			return err
		}
		path := cfg.LogPath()
		out := cmd.OutOrStdout()

		if !inspectWatch {
			p, err := parser.ParseFile(path)
			if err != nil {
				return err
			}
			return printProblem(out, p)
		}

		output.Logger.Info("Watching fit log", "path", path)
		return parser.Watch(cmd.Context(), path, func(p *model.Problem, err error) {
			if err != nil {
				output.Logger.Error("Failed to parse fit log", "path", path, "error", err)
				return
			}
			if err := printProblem(out, p); err != nil {
				output.Logger.Error("Failed to write parameters", "error", err)
			}
		})
	},
}

func printProblem(w io.Writer, p *model.Problem) error {
	fmt.Fprint(w, p.String())
	fmt.Fprintf(w, "%d fit parameters\n", len(p.Params))
	if inspectCSV != "" {
		return output.WriteParamsCSV(inspectCSV, p.Params)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectModel, "model", "m", "", "Model base path, without the log suffix")
	inspectCmd.Flags().StringVar(&inspectCSV, "csv", "", "Also write the fit parameter table to this CSV file")
	inspectCmd.Flags().BoolVar(&inspectWatch, "watch", false, "Re-print every time the log changes")
	_ = inspectCmd.MarkFlagRequired("model")
}
