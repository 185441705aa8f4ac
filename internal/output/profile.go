/*
PURPOSE:
  Writes the averaged depth profile of each model to its own text file.

REQUIREMENTS:
  User-specified:
  - One file per model, named by inserting the model name before the
    output file's extension.
  - Five whitespace-separated columns: depth, mean density, density std,
    mean magnetic density, magnetic std.

  Implementation-discovered:
  - Bins nobody counted print as NaN; readers treat that as "no data".

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run
  - Consumes: internal/profile.Accumulator

ERROR HANDLING:
  - Returns error on file creation or write failure.

USAGE:
  path := output.ProfilePath("out/profile.txt", "T300") // out/profile_T300.txt
  err := output.WriteProfile(path, acc)

RELATED FILES:
  - internal/profile/accumulator.go
*/

package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/daryltucker/reflstats/internal/profile"
)

// Base strips the extension from an output path.
func Base(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// ProfilePath inserts "_<model>" before the extension of path.
func ProfilePath(path, modelName string) string {
	return Base(path) + "_" + modelName + filepath.Ext(path)
}

// FormatProfile writes one line per grid bin.
func FormatProfile(w io.Writer, acc *profile.Accumulator) error {
	mean, std := acc.Mean()
	magMean, magStd := acc.MeanMagnetism()

	bw := bufio.NewWriter(w)
	for j := range mean {
		if _, err := fmt.Fprintf(bw, "%g %g %g %g %g\n", acc.Z[j], mean[j], std[j], magMean[j], magStd[j]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteProfile creates path and writes acc to it.
func WriteProfile(path string, acc *profile.Accumulator) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := FormatProfile(f, acc); err != nil {
		f.Close()
		return fmt.Errorf("write profile %s: %w", path, err)
	}
	return f.Close()
}
