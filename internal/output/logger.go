/*
PURPOSE:
  Provides the structured logger shared by every reflstats package.
  Wraps slog for consistent output.

REQUIREMENTS:
  User-specified:
  - "Sane" CLI output. Progress every N draws, not every draw.

  Implementation-discovered:
  - --verbose lowers the level to Debug at runtime, so the level lives in
    a LevelVar rather than in the handler options.

ARCHITECTURE INTEGRATION:
  - Used everywhere.

USAGE:
  output.Logger.Info("message", "key", "value")
  output.SetVerbose(true)

RELATED FILES:
  - internal/cli/root.go
*/

package output

import (
	"log/slog"
	"os"
)

var (
	Logger *slog.Logger
	level  = new(slog.LevelVar)
)

func init() {
	Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// SetLogger allows overriding the default logger (e.g. for testing).
func SetLogger(l *slog.Logger) {
	Logger = l
}

// SetVerbose switches the default logger between Info and Debug.
func SetVerbose(v bool) {
	if v {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}
