/*
PURPOSE:
  Re-parses a fit log every time the running fit rewrites it.

REQUIREMENTS:
  User-specified:
  - 'inspect --watch' follows a fit in progress.

  Implementation-discovered:
  - Fitters rewrite the log by rename, so the parent directory is
    watched and events are filtered by path.
  - One rewrite produces a burst of events; they are debounced.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (inspect)
  - Uses: github.com/fsnotify/fsnotify

ERROR HANDLING:
  - Parse and watcher errors go to the callback. The watch ends with ctx.

USAGE:
  err := parser.Watch(ctx, "model152both.err", func(p *model.Problem, err error) { ... })

RELATED FILES:
  - internal/parser/parser.go
*/

package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/daryltucker/reflstats/internal/model"
)

// WatchDebounce batches the bursts of writes a fitter makes when it
// rewrites its log.
const WatchDebounce = 250 * time.Millisecond

// Watch parses path once, then again after every change to it, passing each
// result to fn. It blocks until ctx is done. The parent directory is watched
// so logs replaced by rename are still seen.
func Watch(ctx context.Context, path string, fn func(*model.Problem, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	fn(ParseFile(path))

	timer := time.NewTimer(WatchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(WatchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fn(nil, err)

		case <-timer.C:
			fn(ParseFile(path))
		}
	}
}
