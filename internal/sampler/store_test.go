package sampler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readWriter interface {
	Store
	Writer
}

const (
	testChains      = 6
	testGenerations = 10
	stuckChain      = 5
)

// population fills w with points [generation, chain]; the last chain is stuck
// at a far worse log-likelihood than the rest.
func population(t *testing.T, w Writer) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, w.SetLabels(ctx, []string{"gen", "chain"}))
	for g := 0; g < testGenerations; g++ {
		var batch []Sample
		for c := 0; c < testChains; c++ {
			logp := -10 - 0.1*float64(c)
			if c == stuckChain {
				logp = -500
			}
			batch = append(batch, Sample{Generation: g, Chain: c, LogP: logp, Point: []float64{float64(g), float64(c)}})
		}
		require.NoError(t, w.Append(ctx, batch...))
	}
}

func exerciseStore(t *testing.T, st readWriter) {
	ctx := context.Background()

	_, err := st.Draw(ctx, 1)
	require.True(t, errors.Is(err, ErrNoDraws), "empty store: %v", err)

	population(t, st)

	labels, err := st.Labels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gen", "chain"}, labels)

	all, err := st.Draw(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, testChains*testGenerations, all.Len())
	assert.Equal(t, 2, all.Width())

	n, err := st.MarkOutliers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	t.Run("whole population", func(t *testing.T) {
		d, err := st.Draw(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, (testChains-1)*testGenerations, d.Len())
		assert.Equal(t, []string{"gen", "chain"}, d.Labels)
		for _, p := range d.Points {
			assert.NotEqual(t, float64(stuckChain), p[1])
		}
		assert.Equal(t, []float64{0, 0}, d.Points[0])
		assert.Equal(t, []float64{0, 1}, d.Points[1])
		assert.Equal(t, []float64{9, 4}, d.Points[d.Len()-1])
	})

	t.Run("last half", func(t *testing.T) {
		d, err := st.Draw(ctx, 0.5)
		require.NoError(t, err)
		assert.Equal(t, (testChains-1)*5, d.Len())
		assert.Equal(t, []float64{5, 0}, d.Points[0])
	})

	t.Run("portion rounds up", func(t *testing.T) {
		d, err := st.Draw(ctx, 0.25)
		require.NoError(t, err)
		assert.Equal(t, (testChains-1)*3, d.Len())
		assert.Equal(t, 7.0, d.Points[0][0])
	})

	t.Run("bad portion", func(t *testing.T) {
		for _, p := range []float64{0, -0.1, 1.5} {
			_, err := st.Draw(ctx, p)
			assert.Error(t, err, "portion %g", p)
		}
	})

	t.Run("marking is repeatable", func(t *testing.T) {
		n, err := st.MarkOutliers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	exerciseStore(t, st)
}

func TestMemoryStoreRejectsWidthChange(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Append(ctx, Sample{Point: []float64{1, 2}}))
	err := st.Append(ctx, Sample{Generation: 1, Point: []float64{1}})
	assert.True(t, errors.Is(err, ErrWidthMismatch))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	st := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, st.Init(ctx))
	t.Cleanup(func() { _ = st.Close() })
	exerciseStore(t, st)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	st := NewSQLiteStore(path)
	require.NoError(t, st.Init(ctx))
	first, err := st.NewRun(ctx, "old.txt")
	require.NoError(t, err)
	require.NoError(t, st.Append(ctx, Sample{Point: []float64{1}}))
	require.NoError(t, st.CommitRun(ctx))

	second, err := st.NewRun(ctx, "new.txt")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	population(t, st)
	require.NoError(t, st.CommitRun(ctx))

	_, err = st.NewRun(ctx, "unfinished.txt")
	require.NoError(t, err)
	require.NoError(t, st.Append(ctx, Sample{Point: []float64{7, 7}}))
	require.NoError(t, st.Close())

	reopened, err := Open(ctx, "sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	assert.Equal(t, second, reopened.(*SQLiteStore).RunID())

	d, err := reopened.Draw(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, testChains*testGenerations, d.Len())
}

func TestSQLiteStoreImportRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	var good strings.Builder
	good.WriteString("# labels: a\tb\n")
	for g := 0; g < 100; g++ {
		for c := 0; c < 4; c++ {
			fmt.Fprintf(&good, "%d %d -1 1 2\n", c, g)
		}
	}
	var bad strings.Builder
	bad.WriteString("# labels: x\ty\n")
	for i := 0; i < 600; i++ {
		fmt.Fprintf(&bad, "%d %d -1 9 9\n", i%4, i/4)
	}
	bad.WriteString("0 999 -1 oops 9\n")

	st := NewSQLiteStore(path)
	require.NoError(t, st.Init(ctx))
	goodRun, n, err := st.ImportRun(ctx, "good.txt", strings.NewReader(good.String()))
	require.NoError(t, err)
	assert.Equal(t, 400, n)
	assert.Equal(t, goodRun, st.RunID())

	checkGood := func(t *testing.T, s Store) {
		t.Helper()
		d, err := s.Draw(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 400, d.Len())
		assert.Equal(t, []float64{1, 2}, d.Points[0])
		assert.Equal(t, []string{"a", "b"}, d.Labels)
	}

	t.Run("failed import keeps the previous run", func(t *testing.T) {
		_, n, err := st.ImportRun(ctx, "bad.txt", strings.NewReader(bad.String()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 602")
		assert.Equal(t, 512, n)
		assert.Equal(t, goodRun, st.RunID())
		checkGood(t, st)
	})

	t.Run("empty import keeps the previous run", func(t *testing.T) {
		_, _, err := st.ImportRun(ctx, "empty.txt", strings.NewReader("# labels: x\n# nothing else\n"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoDraws))
		assert.Equal(t, goodRun, st.RunID())
		checkGood(t, st)
	})

	require.NoError(t, st.Close())

	t.Run("reopened store sees the good run", func(t *testing.T) {
		reopened, err := Open(ctx, "sqlite", path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = reopened.Close() })
		assert.Equal(t, goodRun, reopened.(*SQLiteStore).RunID())
		checkGood(t, reopened)
	})
}

func TestSQLiteStoreAbortWithoutPendingRun(t *testing.T) {
	ctx := context.Background()
	st := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, st.Init(ctx))
	t.Cleanup(func() { _ = st.Close() })

	assert.Error(t, st.AbortRun(ctx))
	assert.Error(t, st.CommitRun(ctx))
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	st := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	_, err := st.Draw(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), "memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	_, err = Open(context.Background(), "hdf5", "x")
	assert.Error(t, err)
}

func TestIQROutliers(t *testing.T) {
	assert.Empty(t, iqrOutliers(map[int]float64{0: -1}))
	assert.Empty(t, iqrOutliers(map[int]float64{0: -1, 1: -1.1, 2: -0.9, 3: -1.05}))
	assert.Equal(t, []int{2, 7}, iqrOutliers(map[int]float64{
		0: -10, 1: -10.2, 2: -90, 3: -10.1, 4: -9.9, 5: -10.3, 6: -10.05, 7: -75,
	}))
}

func TestChainScoresUseLastHalf(t *testing.T) {
	var samples []Sample
	for g := 0; g < 4; g++ {
		logp := -1.0
		if g < 2 {
			logp = -1000
		}
		samples = append(samples, Sample{Generation: g, Chain: 0, LogP: logp})
	}
	assert.Equal(t, map[int]float64{0: -1}, chainScores(samples))
}

func TestPercentile(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, percentile(v, 0.25), 1e-12)
	assert.InDelta(t, 3.25, percentile(v, 0.75), 1e-12)
	assert.Equal(t, 5.0, percentile([]float64{5}, 0.5))

	t.Run("numpy linear rule", func(t *testing.T) {
		v := []float64{10, 20, 30, 40, 50}
		for q, want := range map[float64]float64{0: 10, 0.1: 14, 0.25: 20, 0.6: 34, 1: 50} {
			assert.InDelta(t, want, percentile(v, q), 1e-9, "q=%g", q)
		}
	})
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	input := strings.Join([]string{
		"# DREAM dump",
		"# labels: intensity\tbackground\tMGN_2 thickness",
		"0 0 -12.5 1.0 1e-6 20.1",
		"1 0 -13.0 1.1 2e-6 20.3",
		"",
		"0 1 -11.9 1.05 1.5e-6 20.2",
	}, "\n")

	st := NewMemoryStore()
	n, err := Import(ctx, strings.NewReader(input), st)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	labels, _ := st.Labels(ctx)
	assert.Equal(t, []string{"intensity", "background", "MGN_2 thickness"}, labels)

	d, err := st.Draw(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, d.Len())
	assert.Equal(t, []float64{1.0, 1e-6, 20.1}, d.Points[0])
	assert.Equal(t, []float64{1.05, 1.5e-6, 20.2}, d.Points[2])
}

func TestImportErrors(t *testing.T) {
	ctx := context.Background()
	for name, input := range map[string]string{
		"too few fields": "0 0 -1\n",
		"bad chain":      "x 0 -1 2\n",
		"bad value":      "0 0 -1 abc\n",
		"width change":   "0 0 -1 2 3\n1 0 -1 2\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Import(ctx, strings.NewReader(input), NewMemoryStore())
			assert.Error(t, err)
		})
	}

	_, err := Import(ctx, strings.NewReader("0 0 -1 2 3\n1 0 -1 2\n"), NewMemoryStore())
	assert.True(t, errors.Is(err, ErrWidthMismatch))
}
