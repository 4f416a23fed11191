package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/precompCaptions/datasets"
	"github.com/Noofbiz/precompCaptions/transform"
)

// constDataset returns samples whose caption i holds i%3 copies of id 3.
type constDataset struct{ n int }

func (c constDataset) Len() int { return c.n }

func (c constDataset) Example(i int) (*datasets.Sample, error) {
	if i < 0 || i >= c.n {
		return nil, errors.Errorf("index %d out of range", i)
	}
	caption := make([]int64, i%3)
	tokens := make([]string, i%3)
	for j := range caption {
		caption[j] = 3
		tokens[j] = "<unk>"
	}
	img := &transform.Image{Data: make([]float32, 3), Channels: 3, Height: 1, Width: 1}
	return &datasets.Sample{Image: img, Caption: caption, Tokens: tokens, Index: i}, nil
}

func (c constDataset) Batch(indices []int) ([]*datasets.Sample, error) {
	samples := make([]*datasets.Sample, len(indices))
	for i, idx := range indices {
		s, err := c.Example(idx)
		if err != nil {
			return nil, err
		}
		samples[i] = s
	}
	return samples, nil
}

func TestRunEpoch(t *testing.T) {
	loader, err := datasets.NewLoader("const", constDataset{n: 7}, datasets.SequentialSampler{N: 7}, 3, 0)
	require.NoError(t, err)

	stats, err := runEpoch(loader, loader.Len(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.batches)
	assert.Equal(t, 7, stats.samples)
	assert.Len(t, stats.ids, 7)
	assert.Len(t, stats.lengths, 7)
	// lengths 0,1,2,0,1,2,0 reported as 1,1,2,1,1,2,1
	assert.Equal(t, 9, stats.tokens)
	assert.Equal(t, 6, stats.unknown)
	assert.Equal(t, 2, stats.maxBatchLen)
	assert.Greater(t, stats.bytes, uint64(0))

	loader.Reset()
	stats, err = runEpoch(loader, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.batches)
}

func TestPlotLengths(t *testing.T) {
	out := filepath.Join(t.TempDir(), "plots", "lengths.png")
	require.NoError(t, plotLengths(out, "lengths", []float64{1, 3, 3, 4, 9}))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
