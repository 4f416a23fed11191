package datasets

import (
	"github.com/Noofbiz/precompCaptions/tokenize"
	"github.com/Noofbiz/precompCaptions/transform"
)

// This package loads precomputed caption/image datasets and presents them as
// batches suitable for training an image-text model.
//
// On disk a split is two parallel line-oriented files under a data path:
//
//	<split>_caps_verify.txt      one caption per line
//	<split>_filename_verify.txt  one image reference per line
//
// (the test split uses <split>_caps.txt and <split>_filename.txt). Several
// captions usually describe the same image: when the number of image
// references differs from the number of captions, five consecutive captions
// share one image, so caption i belongs to image i/5.
//
// Both files are read as raw bytes split at '\n'. A trailing '\r' and other
// ASCII white space around each line are removed, and a UTF-8 byte order mark
// at the start of a file is dropped. Empty lines are kept, so they still
// count as captions or image references.
//
// Layout and intended usage:
//
// PrecompDataset
//   - Reads both lists eagerly; images are decoded lazily, one per Example.
//   - Example(i) returns the transformed image (3 x 256 x 256, float32),
//     the caption token ids, the tokens, i and the image id.
//
// Collate
//   - Sorts samples by caption length (longest first), stacks images and
//     zero-pads the token ids into a [batch, maxlen] matrix.
//
// Loader
//   - Draws indices from a Sampler, loads and collates batches and implements
//     gomlx's train.Dataset interface.

// Split names a dataset partition.
type Split string

// Known splits.
const (
	Train Split = "train"
	Val   Split = "val"
	Test  Split = "test"
)

// ShortName returns the three letter abbreviation of s used in metric
// labels: "trn", "val" or "tst".
func (s Split) ShortName() string {
	switch s {
	case Train:
		return "trn"
	case Val:
		return "val"
	case Test:
		return "tst"
	}
	if len(s) <= 3 {
		return string(s)
	}
	return string(s[:3])
}

// Sample is one caption with its image.
type Sample struct {
	// Image is the transformed image, channels first.
	Image *transform.Image

	// Caption holds the vocabulary id of every token.
	Caption []int64

	// Tokens are the caption tokens after out of vocabulary words were
	// replaced by the unknown token.
	Tokens tokenize.Tokens

	// Index is the position of the caption in the split.
	Index int

	// ImageID is the position of the image reference in the split.
	ImageID int
}

// Dataset is what the loader needs from a caption dataset.
type Dataset interface {
	Len() int
	Example(i int) (*Sample, error)
	Batch(indices []int) ([]*Sample, error)
}
