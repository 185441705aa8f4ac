/*
PURPOSE:
  Defines the 'import-draws' subcommand.
  Loads a plain-text dump of sampler points into the SQLite state that
  'run' reads, for fits whose state was exported rather than saved.

REQUIREMENTS:
  Implementation-discovered:
  - Each import is a new run in the state file; 'run' uses the latest.
  - A failed or empty import leaves the previous run in place.

ARCHITECTURE INTEGRATION:
  - Calls: internal/sampler.SQLiteStore.ImportRun

ERROR HANDLING:
  - Malformed lines abort the import with the line number.

USAGE:
  reflstats import-draws -m fits/model152both draws.txt

RELATED FILES:
  - internal/sampler/import.go
*/

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/reflstats/internal/output"
	"github.com/daryltucker/reflstats/internal/sampler"
)

var importModel string

var importCmd = &cobra.Command{
	Use:   "import-draws FILE",
	Short: "Import a text dump of sampler points into the sampler state",
	Long: `Reads FILE, one sample per line: "chain generation logp v1 ... vn".
Lines starting with '#' are comments; a "# labels:" line gives the
tab-separated parameter names. The samples are stored as a new run in
<model><state_suffix>.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(importModel)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		st := sampler.NewSQLiteStore(cfg.StatePath())
		if err := st.Init(ctx); err != nil {
			return fmt.Errorf("open sampler state %s: %w", cfg.StatePath(), err)
		}
		defer st.Close()

		run, n, err := st.ImportRun(ctx, args[0], f)
		if err != nil {
			return fmt.Errorf("import %s: %w", args[0], err)
		}
		output.Logger.Info("Imported draws", "samples", n, "run", run, "state", cfg.StatePath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importModel, "model", "m", "", "Model base path, without the state suffix")
	_ = importCmd.MarkFlagRequired("model")
}
