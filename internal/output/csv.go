/*
PURPOSE:
  Writes the Fit Parameter Entries of a parsed log to a CSV file.

REQUIREMENTS:
  User-specified:
  - Output to CSV.

  Implementation-discovered:
  - `inspect --watch` rewrites the table on every log change, so the file
    is truncated, not appended to.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (inspect --csv)
  - Consumes: internal/model.FitParam

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Header: index,name,best,uncertainty.

USAGE:
  err := output.WriteParamsCSV("params.csv", problem.Params)

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/daryltucker/reflstats/internal/model"
)

var paramsHeader = []string{"index", "name", "best", "uncertainty"}

// FormatParamsCSV writes params with a header row.
func FormatParamsCSV(w io.Writer, params []model.FitParam) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(paramsHeader); err != nil {
		return err
	}
	for i, p := range params {
		record := []string{
			strconv.Itoa(i),
			p.Name,
			strconv.FormatFloat(p.Best, 'g', -1, 64),
			strconv.FormatFloat(p.Uncertainty, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteParamsCSV creates or truncates path and writes params to it.
func WriteParamsCSV(path string, params []model.FitParam) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := FormatParamsCSV(f, params); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
