package datasets

import (
	"io"
	"sync"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	mldata "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/precompCaptions/config"
	"github.com/Noofbiz/precompCaptions/vocab"
)

// Loader yields collated batches of a Dataset in the order chosen by a
// Sampler. It implements gomlx's train.Dataset and is safe for concurrent
// use.
//
// Yield returns the inputs [images, targets, lengths] and the labels [ids];
// see CaptionBatch.ToGomlxTensors for their shapes. An epoch ends with
// io.EOF; the last batch of an epoch may be smaller than the batch size.
type Loader struct {
	name      string
	shortName string
	dataset   Dataset
	sampler   Sampler
	batchSize int
	workers   int

	mu    sync.Mutex
	epoch int
	order []int
	pos   int
}

// Assert Loader is a train.Dataset.
var _ train.Dataset = (*Loader)(nil)

// NewLoader creates a loader over ds. Up to workers samples of a batch are
// loaded concurrently; 0 loads them one at a time.
func NewLoader(name string, ds Dataset, sampler Sampler, batchSize, workers int) (*Loader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if workers < 0 {
		return nil, errors.Errorf("workers must not be negative, got %d", workers)
	}
	l := &Loader{
		name:      name,
		dataset:   ds,
		sampler:   sampler,
		batchSize: batchSize,
		workers:   workers,
	}
	l.order = sampler.Indices(0)
	return l, nil
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.name }

// ShortName implements train.HasShortName. Loaders created by
// NewPrecompLoader use the short name of their split, others the first three
// letters of their name.
func (l *Loader) ShortName() string {
	if l.shortName != "" {
		return l.shortName
	}
	if len(l.name) <= 3 {
		return l.name
	}
	return l.name[:3]
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() Dataset { return l.dataset }

// BatchSize returns the maximum number of samples per batch.
func (l *Loader) BatchSize() int { return l.batchSize }

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	return (l.sampler.Len() + l.batchSize - 1) / l.batchSize
}

// Epoch returns the current epoch.
func (l *Loader) Epoch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// SetEpoch restarts the loader at the given epoch. Shuffling samplers use the
// epoch to pick their order, so every replica of a distributed run must call
// SetEpoch with the same value.
func (l *Loader) SetEpoch(epoch int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch = epoch
	l.order = l.sampler.Indices(epoch)
	l.pos = 0
}

// Reset implements train.Dataset. It starts the next epoch.
func (l *Loader) Reset() {
	l.SetEpoch(l.Epoch() + 1)
}

// nextIndices reserves the indices of the next batch.
func (l *Loader) nextIndices() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos >= len(l.order) {
		return nil
	}
	end := min(l.pos+l.batchSize, len(l.order))
	indices := l.order[l.pos:end]
	l.pos = end
	return indices
}

// NextBatch loads and collates the next batch. It returns io.EOF at the end
// of the epoch.
func (l *Loader) NextBatch() (*CaptionBatch, error) {
	indices := l.nextIndices()
	if len(indices) == 0 {
		return nil, io.EOF
	}
	samples, err := loadSamples(l.dataset, indices, l.workers)
	if err != nil {
		return nil, err
	}
	return Collate(samples)
}

// Yield implements train.Dataset.
func (l *Loader) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	batch, err := l.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	images, targets, lengths, ids := batch.ToGomlxTensors()
	return l.name, []*tensors.Tensor{images, targets, lengths}, []*tensors.Tensor{ids}, nil
}

// loadSamples loads the examples at indices, keeping their order. Up to
// workers examples are loaded at once; 0 loads them sequentially.
func loadSamples(ds Dataset, indices []int, workers int) ([]*Sample, error) {
	samples := make([]*Sample, len(indices))
	if workers <= 1 {
		for i, idx := range indices {
			s, err := ds.Example(idx)
			if err != nil {
				return nil, err
			}
			samples[i] = s
		}
		return samples, nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, idx := range indices {
		g.Go(func() error {
			s, err := ds.Example(idx)
			if err != nil {
				return err
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

// NewPrecompLoader creates the dataset of split and a loader over it. When
// opts.Distributed is set the training split is sharded across
// opts.WorldSize replicas and shuffled regardless of shuffle.
func NewPrecompLoader(opts *config.Options, split Split, v *vocab.Vocabulary, batchSize int, shuffle bool, workers int) (*Loader, error) {
	ds, err := NewPrecompDataset(opts, split, v)
	if err != nil {
		return nil, err
	}
	var sampler Sampler
	switch {
	case opts.Distributed && split == Train:
		// Every replica must draw the same permutation, so the seed is used
		// as given, 0 included.
		sampler, err = NewDistributedSampler(ds.Len(), opts.WorldSize, opts.Rank, true, opts.Seed)
		if err != nil {
			return nil, err
		}
	case shuffle:
		seed := opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		sampler = RandomSampler{N: ds.Len(), Seed: seed}
	default:
		sampler = SequentialSampler{N: ds.Len()}
	}
	klog.V(1).Infof("Loader %s: %d captions, batch size %d, %d batches per epoch",
		ds.Name(), ds.Len(), batchSize, (sampler.Len()+batchSize-1)/batchSize)
	l, err := NewLoader(ds.Name(), ds, sampler, batchSize, workers)
	if err != nil {
		return nil, err
	}
	l.shortName = split.ShortName()
	return l, nil
}

// WithPrefetch wraps l so that prefetch goroutines generate batches in
// the background. Batches may then arrive in a different order. It returns
// l itself when prefetching is disabled.
func WithPrefetch(l *Loader, prefetch int) train.Dataset {
	if prefetch <= 0 {
		return l
	}
	return mldata.CustomParallel(l).Parallelism(prefetch).Buffer(prefetch).Start()
}

// GetLoaders returns the training loader (shuffled) and the validation
// loader (in order).
func GetLoaders(opts *config.Options, v *vocab.Vocabulary) (trainLoader, valLoader train.Dataset, err error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	trainL, err := NewPrecompLoader(opts, Train, v, opts.BatchSize, true, opts.Workers)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create training loader")
	}
	valL, err := NewPrecompLoader(opts, Val, v, opts.BatchSizeVal, false, opts.Workers)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create validation loader")
	}
	return WithPrefetch(trainL, opts.Prefetch), WithPrefetch(valL, opts.Prefetch), nil
}

// GetTestLoader returns the loader of the test split, in order.
func GetTestLoader(opts *config.Options, v *vocab.Vocabulary) (train.Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	testL, err := NewPrecompLoader(opts, Test, v, opts.BatchSizeVal, false, opts.Workers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create test loader")
	}
	return WithPrefetch(testL, opts.Prefetch), nil
}
