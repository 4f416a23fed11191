package datasets

import (
	"image"
	"math/rand"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/precompCaptions/config"
	"github.com/Noofbiz/precompCaptions/tokenize"
	"github.com/Noofbiz/precompCaptions/transform"
	"github.com/Noofbiz/precompCaptions/vocab"
)

// PrecompDataset serves the captions of one split together with their
// transformed images.
//
// Caption and image lists are read when the dataset is created. Images are
// opened and transformed on every Example call; decoded images (before any
// transform) are optionally kept in an LRU cache keyed by image id.
type PrecompDataset struct {
	// Split this dataset was loaded from.
	Split Split

	imagePath string

	captions [][]byte
	images   [][]byte

	// imDiv is how many consecutive captions share an image.
	imDiv int

	vocab     *vocab.Vocabulary
	tokenizer *tokenize.CaptionTokenizer
	unknown   tokenize.TokenFunc
	pipeline  *transform.Pipeline

	// tokens holds precomputed tokens per caption before <unk> mapping, nil
	// until PrecomputeTokens or LoadTokenCache succeed.
	tokens []tokenize.Tokens

	imageCache *lru.Cache

	muRand sync.Mutex
	rand   *rand.Rand
}

// NewPrecompDataset reads the caption and image lists of split from
// opts.DataPath. The training split uses the augmenting pipeline, every other
// split the deterministic one.
func NewPrecompDataset(opts *config.Options, split Split, v *vocab.Vocabulary) (*PrecompDataset, error) {
	if v == nil {
		return nil, errors.New("nil vocabulary")
	}
	captions, err := ReadCaptions(opts.DataPath, split)
	if err != nil {
		return nil, err
	}
	_, imagesPath := splitFiles(opts.DataPath, split)
	images, err := readLines(imagesPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image list of split %q", split)
	}

	pipeline := transform.EvalPipeline()
	if split == Train {
		pipeline = transform.TrainPipeline()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	d := &PrecompDataset{
		Split:     split,
		imagePath: opts.ImagePath,
		captions:  captions,
		images:    images,
		imDiv:     redundancyDivisor(len(captions), len(images)),
		vocab:     v,
		tokenizer: tokenize.NewCaptionTokenizer(),
		unknown:   tokenize.MapUnknown(v, vocab.UnkToken),
		pipeline:  pipeline,
		rand:      rand.New(rand.NewSource(seed)),
	}
	if opts.ImageCacheSize > 0 {
		d.imageCache, err = lru.New(opts.ImageCacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create image cache")
		}
	}
	klog.V(1).Infof("Split %q: %d captions, %d images, %d captions per image",
		split, len(captions), len(images), d.imDiv)

	if opts.TokenCacheDir != "" {
		d.useTokenCache(TokenCachePath(opts.TokenCacheDir, split), opts.Workers)
	}
	return d, nil
}

// useTokenCache loads the token cache at path or, failing that, tokenizes
// every caption and tries to save the result. Failures only cost speed.
func (d *PrecompDataset) useTokenCache(path string, workers int) {
	err := d.LoadTokenCache(path)
	if err == nil {
		klog.V(1).Infof("Loaded token cache %s (%d captions)", path, len(d.tokens))
		return
	}
	klog.V(1).Infof("Token cache %s not used: %v", path, err)
	if err := d.PrecomputeTokens(workers); err != nil {
		klog.Warningf("Failed to precompute tokens of split %q: %v", d.Split, err)
		d.tokens = nil
		return
	}
	if err := d.SaveTokenCache(path); err != nil {
		klog.Warningf("Failed to save token cache %s: %v", path, err)
	}
}

// Name implements the gomlx dataset naming convention.
func (d *PrecompDataset) Name() string { return "precomp-" + string(d.Split) }

// Len returns the number of captions.
func (d *PrecompDataset) Len() int { return len(d.captions) }

// NumImages returns the number of image references.
func (d *PrecompDataset) NumImages() int { return len(d.images) }

// RedundancyDivisor returns how many consecutive captions share one image:
// 5 if the number of images differs from the number of captions, 1 otherwise.
func (d *PrecompDataset) RedundancyDivisor() int { return d.imDiv }

// ImageID returns the image id of caption index.
func (d *PrecompDataset) ImageID(index int) int { return index / d.imDiv }

// Caption returns the raw bytes of caption index.
func (d *PrecompDataset) Caption(index int) ([]byte, error) {
	if index < 0 || index >= len(d.captions) {
		return nil, errors.Errorf("caption index %d out of range [0, %d)", index, len(d.captions))
	}
	return d.captions[index], nil
}

// ImageRef returns the raw image reference of image id.
func (d *PrecompDataset) ImageRef(imageID int) ([]byte, error) {
	if imageID < 0 || imageID >= len(d.images) {
		return nil, errors.Errorf("image id %d out of range [0, %d)", imageID, len(d.images))
	}
	return d.images[imageID], nil
}

// Pipeline returns the image transform used by Example.
func (d *PrecompDataset) Pipeline() *transform.Pipeline { return d.pipeline }

// Reseed resets the random source used for augmentation.
func (d *PrecompDataset) Reseed(seed int64) {
	d.muRand.Lock()
	defer d.muRand.Unlock()
	d.rand = rand.New(rand.NewSource(seed))
}

// newRand returns a generator for one Example call. Each call gets its own
// generator so Example is safe for concurrent use.
func (d *PrecompDataset) newRand() *rand.Rand {
	d.muRand.Lock()
	defer d.muRand.Unlock()
	return rand.New(rand.NewSource(d.rand.Int63()))
}

// Tokens returns the tokens of caption index, with words missing from the
// vocabulary replaced by the unknown token.
func (d *PrecompDataset) Tokens(index int) (tokenize.Tokens, error) {
	if index < 0 || index >= len(d.captions) {
		return nil, errors.Errorf("caption index %d out of range [0, %d)", index, len(d.captions))
	}
	if d.tokens != nil {
		return d.unknown(slices.Clone(d.tokens[index])), nil
	}
	tokens, err := d.tokenizer.Tokenize(d.captions[index])
	if err != nil {
		return nil, errors.Wrapf(err, "caption %d", index)
	}
	return d.unknown(tokens), nil
}

// Example returns caption index with its transformed image.
func (d *PrecompDataset) Example(index int) (*Sample, error) {
	tokens, err := d.Tokens(index)
	if err != nil {
		return nil, err
	}
	imageID := d.ImageID(index)
	if imageID >= len(d.images) {
		return nil, errors.Errorf("caption %d refers to image %d but split %q has %d images",
			index, imageID, d.Split, len(d.images))
	}

	caption := make([]int64, len(tokens))
	for i, tok := range tokens {
		caption[i] = int64(d.vocab.Lookup(tok))
	}

	img, err := d.loadImage(imageID)
	if err != nil {
		return nil, err
	}
	tensor, err := d.pipeline.Apply(img, d.newRand())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to transform image %d", imageID)
	}
	return &Sample{
		Image:   tensor,
		Caption: caption,
		Tokens:  tokens,
		Index:   index,
		ImageID: imageID,
	}, nil
}

// Batch loads the examples at indices, in order.
func (d *PrecompDataset) Batch(indices []int) ([]*Sample, error) {
	return loadSamples(d, indices, 0)
}

func (d *PrecompDataset) loadImage(imageID int) (image.Image, error) {
	if d.imageCache != nil {
		if cached, ok := d.imageCache.Get(imageID); ok {
			return cached.(image.Image), nil
		}
	}
	path := d.imagePath + string(d.images[imageID])
	img, err := transform.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "image %d", imageID)
	}
	if d.imageCache != nil {
		d.imageCache.Add(imageID, img)
	}
	return img, nil
}
