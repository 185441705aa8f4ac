package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/reflstats/internal/model"
)

func TestWatchReparsesOnWrite(t *testing.T) {
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fit.err")
	require.NoError(t, os.WriteFile(path, []byte("fit starting\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *model.Problem, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(p *model.Problem, err error) {
			if err == nil {
				results <- p
			}
		})
	}()

	select {
	case p := <-results:
		assert.Empty(t, p.Params)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial parse")
	}

	require.NoError(t, os.WriteFile(path, data, 0o644))
	select {
	case p := <-results:
		assert.Len(t, p.Params, 24)
		assert.Equal(t, []string{"T300", "T050"}, p.ModelNames())
	case <-time.After(5 * time.Second):
		t.Fatal("no reparse after write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "fit.err"), func(*model.Problem, error) {})
	assert.Error(t, err)
}
