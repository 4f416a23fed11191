package datasets

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialSampler(t *testing.T) {
	s := SequentialSampler{N: 4}
	assert.Equal(t, []int{0, 1, 2, 3}, s.Indices(0))
	assert.Equal(t, []int{0, 1, 2, 3}, s.Indices(3))
	assert.Equal(t, 4, s.Len())
	assert.Empty(t, SequentialSampler{}.Indices(0))
}

func TestRandomSampler(t *testing.T) {
	s := RandomSampler{N: 50, Seed: 3}
	first := s.Indices(0)
	assert.Equal(t, first, s.Indices(0), "same epoch, same order")
	assert.NotEqual(t, first, s.Indices(1), "epochs reshuffle")

	sorted := append([]int(nil), first...)
	sort.Ints(sorted)
	assert.Equal(t, SequentialSampler{N: 50}.Indices(0), sorted)
}

func TestDistributedSampler(t *testing.T) {
	_, err := NewDistributedSampler(10, 0, 0, false, 0)
	assert.Error(t, err)
	_, err = NewDistributedSampler(10, 3, 3, false, 0)
	assert.Error(t, err)

	var shards [][]int
	for rank := range 3 {
		s, err := NewDistributedSampler(10, 3, rank, false, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, s.Len())
		shards = append(shards, s.Indices(0))
	}
	// 10 indices padded to 12 by wrapping around to 0 and 1
	assert.Equal(t, []int{0, 3, 6, 9}, shards[0])
	assert.Equal(t, []int{1, 4, 7, 0}, shards[1])
	assert.Equal(t, []int{2, 5, 8, 1}, shards[2])
}

func TestDistributedSamplerShuffle(t *testing.T) {
	seen := make(map[int]int)
	for rank := range 4 {
		s, err := NewDistributedSampler(21, 4, rank, true, 11)
		require.NoError(t, err)
		indices := s.Indices(2)
		assert.Len(t, indices, 6)
		for _, idx := range indices {
			seen[idx]++
		}
	}
	// every index is covered; 3 of them twice to fill 24 slots
	assert.Len(t, seen, 21)
	extra := 0
	for _, n := range seen {
		extra += n - 1
	}
	assert.Equal(t, 3, extra)

	s, _ := NewDistributedSampler(21, 4, 0, true, 11)
	assert.NotEqual(t, s.Indices(0), s.Indices(1))
}
