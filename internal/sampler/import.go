/*
PURPOSE:
  Reads a plain-text dump of sampler points into any Writer.

REQUIREMENTS:
  User-specified:
  - Fits whose state was exported as text can still be post-processed.

  Implementation-discovered:
  - Dumps can be large, so samples are written in batches.
  - All points must have one width; a change is an error at that line.

ARCHITECTURE INTEGRATION:
  - Called by: SQLiteStore.ImportRun, tests with MemoryStore

ERROR HANDLING:
  - Errors carry the 1-based line number. Batches already written stay
    in w; SQLiteStore.ImportRun discards them.

USAGE:
  n, err := sampler.Import(ctx, f, store)

RELATED FILES:
  - internal/sampler/sqlite.go
  - internal/cli/import.go
*/

package sampler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const labelsPrefix = "# labels:"

// importBatch bounds how many samples are buffered before Append.
const importBatch = 512

// Import reads a whitespace-separated draw dump into w. Each data line is
// "chain generation logp v1 ... vn"; lines starting with '#' are comments,
// except "# labels:" whose tab-separated remainder names the parameters.
// It returns the number of samples written.
func Import(ctx context.Context, r io.Reader, w Writer) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		batch []Sample
		total int
		width int
		line  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.Append(ctx, batch...); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			if rest, ok := strings.CutPrefix(text, labelsPrefix); ok {
				if err := w.SetLabels(ctx, splitLabels(rest)); err != nil {
					return total, err
				}
			}
			continue
		}

		sm, err := parseSample(text)
		if err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		if width == 0 {
			width = len(sm.Point)
		}
		if len(sm.Point) != width {
			return total, fmt.Errorf("line %d: %w: %d values, expected %d", line, ErrWidthMismatch, len(sm.Point), width)
		}
		batch = append(batch, sm)
		if len(batch) >= importBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, err
	}
	return total, flush()
}

func splitLabels(s string) []string {
	parts := strings.Split(strings.TrimSpace(s), "\t")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

func parseSample(text string) (Sample, error) {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return Sample{}, fmt.Errorf("expected chain, generation, logp and at least one value, got %d fields", len(fields))
	}
	chain, err := strconv.Atoi(fields[0])
	if err != nil {
		return Sample{}, fmt.Errorf("chain: %w", err)
	}
	gen, err := strconv.Atoi(fields[1])
	if err != nil {
		return Sample{}, fmt.Errorf("generation: %w", err)
	}
	logp, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Sample{}, fmt.Errorf("logp: %w", err)
	}
	point := make([]float64, len(fields)-3)
	for i, f := range fields[3:] {
		if point[i], err = strconv.ParseFloat(f, 64); err != nil {
			return Sample{}, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return Sample{Chain: chain, Generation: gen, LogP: logp, Point: point}, nil
}
