package datasets

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Sampler decides which caption indices an epoch visits, and in which order.
type Sampler interface {
	// Indices returns the indices of the given epoch.
	Indices(epoch int) []int

	// Len returns how many indices every epoch has.
	Len() int
}

// SequentialSampler visits 0..N-1 in order.
type SequentialSampler struct {
	N int
}

func (s SequentialSampler) Indices(int) []int {
	indices := make([]int, s.N)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func (s SequentialSampler) Len() int { return s.N }

// RandomSampler visits a permutation of 0..N-1 that depends on Seed and the
// epoch.
type RandomSampler struct {
	N    int
	Seed int64
}

func (s RandomSampler) Indices(epoch int) []int {
	return rand.New(rand.NewSource(s.Seed + int64(epoch))).Perm(s.N)
}

func (s RandomSampler) Len() int { return s.N }

// DistributedSampler gives every one of Replicas processes a disjoint share
// of 0..N-1. The index list is padded by wrapping around so that every
// replica gets ceil(N/Replicas) indices; replica Rank takes every
// Replicas-th index starting at Rank.
type DistributedSampler struct {
	N        int
	Replicas int
	Rank     int
	Shuffle  bool
	Seed     int64
}

// NewDistributedSampler checks the rank against the number of replicas.
func NewDistributedSampler(n, replicas, rank int, shuffle bool, seed int64) (*DistributedSampler, error) {
	if replicas <= 0 {
		return nil, errors.Errorf("number of replicas must be positive, got %d", replicas)
	}
	if rank < 0 || rank >= replicas {
		return nil, errors.Errorf("rank %d out of range [0, %d)", rank, replicas)
	}
	return &DistributedSampler{N: n, Replicas: replicas, Rank: rank, Shuffle: shuffle, Seed: seed}, nil
}

func (s *DistributedSampler) Len() int {
	return (s.N + s.Replicas - 1) / s.Replicas
}

func (s *DistributedSampler) Indices(epoch int) []int {
	if s.N == 0 {
		return nil
	}
	var all []int
	if s.Shuffle {
		all = RandomSampler{N: s.N, Seed: s.Seed}.Indices(epoch)
	} else {
		all = SequentialSampler{N: s.N}.Indices(epoch)
	}
	total := s.Len() * s.Replicas
	for i := 0; len(all) < total; i++ {
		all = append(all, all[i%s.N])
	}
	indices := make([]int, 0, s.Len())
	for i := s.Rank; i < total; i += s.Replicas {
		indices = append(indices, all[i])
	}
	return indices
}
