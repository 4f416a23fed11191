package datasets

import (
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDataset serves fake samples; caption i has i%4 tokens.
type memDataset struct {
	n    int
	fail int

	mu    sync.Mutex
	calls int
}

func (m *memDataset) Len() int { return m.n }

func (m *memDataset) Example(i int) (*Sample, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if i < 0 || i >= m.n {
		return nil, errors.Errorf("index %d out of range", i)
	}
	if m.fail > 0 && i == m.fail {
		return nil, errors.Errorf("broken example %d", i)
	}
	caption := make([]int64, i%4)
	for j := range caption {
		caption[j] = int64(i + 1)
	}
	return fakeSample(i, caption...), nil
}

func (m *memDataset) Batch(indices []int) ([]*Sample, error) {
	return loadSamples(m, indices, 0)
}

func collectIDs(t *testing.T, l *Loader) (ids []int, sizes []int) {
	t.Helper()
	for {
		b, err := l.NextBatch()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		ids = append(ids, b.IDs...)
		sizes = append(sizes, b.Size)
	}
}

func TestLoaderSequential(t *testing.T) {
	l, err := NewLoader("mem", &memDataset{n: 10}, SequentialSampler{N: 10}, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, "mem", l.ShortName())

	b, err := l.NextBatch()
	require.NoError(t, err)
	// indices 0..3 sorted by length 3,2,1,0
	assert.Equal(t, []int{3, 2, 1, 0}, b.IDs)
	assert.Equal(t, []int{3, 2, 1, 1}, b.Lengths)

	ids, sizes := collectIDs(t, l)
	assert.Equal(t, []int{4, 2}, sizes, "last partial batch is kept")
	assert.ElementsMatch(t, []int{4, 5, 6, 7, 8, 9}, ids)

	_, err = l.NextBatch()
	assert.Equal(t, io.EOF, err)

	l.Reset()
	assert.Equal(t, 1, l.Epoch())
	ids, _ = collectIDs(t, l)
	assert.Len(t, ids, 10)
}

func TestLoaderErrors(t *testing.T) {
	_, err := NewLoader("mem", &memDataset{n: 3}, SequentialSampler{N: 3}, 0, 0)
	assert.Error(t, err)
	_, err = NewLoader("mem", &memDataset{n: 3}, SequentialSampler{N: 3}, 2, -1)
	assert.Error(t, err)

	for _, workers := range []int{0, 3} {
		l, err := NewLoader("mem", &memDataset{n: 6, fail: 4}, SequentialSampler{N: 6}, 3, workers)
		require.NoError(t, err)
		_, err = l.NextBatch()
		require.NoError(t, err)
		_, err = l.NextBatch()
		assert.Error(t, err, "workers=%d", workers)
	}
}

func TestLoaderWorkersKeepContent(t *testing.T) {
	seq, err := NewLoader("seq", &memDataset{n: 37}, SequentialSampler{N: 37}, 8, 0)
	require.NoError(t, err)
	par, err := NewLoader("par", &memDataset{n: 37}, SequentialSampler{N: 37}, 8, 4)
	require.NoError(t, err)

	for {
		want, errSeq := seq.NextBatch()
		got, errPar := par.NextBatch()
		if errSeq == io.EOF {
			assert.Equal(t, io.EOF, errPar)
			break
		}
		require.NoError(t, errSeq)
		require.NoError(t, errPar)
		assert.Equal(t, want.IDs, got.IDs)
		assert.Equal(t, want.Targets, got.Targets)
		assert.Equal(t, want.Images, got.Images)
	}
}

func TestLoaderShuffledEpochs(t *testing.T) {
	l, err := NewLoader("mem", &memDataset{n: 40}, RandomSampler{N: 40, Seed: 5}, 40, 0)
	require.NoError(t, err)

	first, err := l.NextBatch()
	require.NoError(t, err)
	l.Reset()
	second, err := l.NextBatch()
	require.NoError(t, err)

	// batches are sorted by length, so compare the visit order via images
	assert.NotEqual(t, first.Images, second.Images)
	assert.ElementsMatch(t, first.IDs, second.IDs)

	l.SetEpoch(0)
	again, err := l.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, first.IDs, again.IDs)
}

func TestLoaderYield(t *testing.T) {
	l, err := NewLoader("mem", &memDataset{n: 5}, SequentialSampler{N: 5}, 3, 0)
	require.NoError(t, err)
	var ds train.Dataset = l

	spec, inputs, labels, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, "mem", spec)
	require.Len(t, inputs, 3)
	require.Len(t, labels, 1)
	assert.Equal(t, []int{3, 3, 2, 2}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int{3, 2}, inputs[1].Shape().Dimensions)
	assert.Equal(t, []int64{2, 1, 1}, inputs[2].Value())
	assert.Equal(t, []int64{2, 1, 0}, labels[0].Value())

	_, _, _, err = ds.Yield()
	require.NoError(t, err)
	_, _, _, err = ds.Yield()
	assert.Equal(t, io.EOF, err)
}

func TestWithPrefetch(t *testing.T) {
	l, err := NewLoader("memory", &memDataset{n: 50}, SequentialSampler{N: 50}, 7, 2)
	require.NoError(t, err)
	assert.Same(t, l, WithPrefetch(l, 0))

	ds := WithPrefetch(l, 3)
	for epoch := range 2 {
		var ids []int
		for {
			_, _, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			for _, id := range labels[0].Value().([]int64) {
				ids = append(ids, int(id))
			}
		}
		sort.Ints(ids)
		assert.Equal(t, SequentialSampler{N: 50}.Indices(0), ids, "epoch %d", epoch)
		ds.Reset()
	}
}

func TestPrecompLoaderDistributedDefaultSeed(t *testing.T) {
	captions := make([]string, 40)
	for i := range captions {
		captions[i] = "a dog"
	}
	opts := writeSplit(t, Train, captions, 8)
	opts.Seed = 0
	opts.Distributed = true
	opts.WorldSize = 2

	loaders := make([]*Loader, opts.WorldSize)
	for rank := range loaders {
		opts.Rank = rank
		l, err := NewPrecompLoader(opts, Train, testVocab(), 4, true, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, l.Len())
		loaders[rank] = l
	}

	for _, epoch := range []int{0, 3} {
		seen := make(map[int]int)
		for _, l := range loaders {
			l.SetEpoch(epoch)
			for _, idx := range l.order {
				seen[idx]++
			}
		}
		assert.Len(t, seen, len(captions), "epoch %d: every caption is assigned", epoch)
		for idx, count := range seen {
			assert.Equal(t, 1, count, "epoch %d: caption %d assigned to one replica", epoch, idx)
		}
	}
}

func TestPrecompLoaderShortName(t *testing.T) {
	for _, tc := range []struct {
		split Split
		want  string
	}{
		{Train, "trn"},
		{Val, "val"},
		{Test, "tst"},
	} {
		opts := writeSplit(t, tc.split, []string{"a dog", "a cat"}, 2)
		l, err := NewPrecompLoader(opts, tc.split, testVocab(), 2, false, 0)
		require.NoError(t, err)
		assert.Equal(t, "precomp-"+string(tc.split), l.Name())
		assert.Equal(t, tc.want, l.ShortName())
	}
	assert.Equal(t, "ext", Split("extra").ShortName())
}
