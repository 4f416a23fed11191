package datasets

import (
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// CaptionBatch is a collated batch. Rows are ordered by caption length,
// longest first.
type CaptionBatch struct {
	// Images is the flat [Size, Channels, Height, Width] image data.
	Images []float32

	// Targets is the flat [Size, MaxLen] matrix of token ids, zero padded.
	Targets []int64

	// Lengths holds the caption length of every row, at least 1.
	Lengths []int

	// IDs holds the caption index of every row.
	IDs []int

	// ImageIDs holds the image id of every row.
	ImageIDs []int

	// Tokens holds the tokens of every row.
	Tokens [][]string

	Size, Channels, Height, Width, MaxLen int
}

// Collate combines samples into a batch. Samples are stably sorted by
// caption length in decreasing order; the input slice is not modified.
//
// Targets are as wide as the longest caption, or 1 wide if every caption is
// empty. Reported lengths are clamped to at least 1.
func Collate(samples []*Sample) (*CaptionBatch, error) {
	if len(samples) == 0 {
		return nil, errors.New("cannot collate an empty batch")
	}
	sorted := make([]*Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Caption) > len(sorted[j].Caption)
	})

	first := sorted[0].Image
	if first == nil {
		return nil, errors.Errorf("sample %d has no image", sorted[0].Index)
	}
	b := &CaptionBatch{
		Size:     len(sorted),
		Channels: first.Channels,
		Height:   first.Height,
		Width:    first.Width,
		MaxLen:   1,
		Lengths:  make([]int, len(sorted)),
		IDs:      make([]int, len(sorted)),
		ImageIDs: make([]int, len(sorted)),
		Tokens:   make([][]string, len(sorted)),
	}
	for _, s := range sorted {
		b.MaxLen = max(b.MaxLen, len(s.Caption))
	}

	imageSize := b.Channels * b.Height * b.Width
	b.Images = make([]float32, 0, b.Size*imageSize)
	b.Targets = make([]int64, b.Size*b.MaxLen)
	for i, s := range sorted {
		if s.Image == nil || s.Image.Channels != b.Channels || s.Image.Height != b.Height || s.Image.Width != b.Width {
			return nil, errors.Errorf("sample %d: image shape differs from the rest of the batch %v", s.Index, first.Shape())
		}
		b.Images = append(b.Images, s.Image.Data...)
		copy(b.Targets[i*b.MaxLen:], s.Caption)
		b.Lengths[i] = max(len(s.Caption), 1)
		b.IDs[i] = s.Index
		b.ImageIDs[i] = s.ImageID
		b.Tokens[i] = s.Tokens
	}
	return b, nil
}

// ToGomlxTensors converts the batch into tensors: images
// [Size, Channels, Height, Width] float32, targets [Size, MaxLen] int64,
// lengths [Size] int64 and ids [Size] int64.
func (b *CaptionBatch) ToGomlxTensors() (images, targets, lengths, ids *tensors.Tensor) {
	images = tensors.FromFlatDataAndDimensions(b.Images, b.Size, b.Channels, b.Height, b.Width)
	targets = tensors.FromFlatDataAndDimensions(b.Targets, b.Size, b.MaxLen)
	lengths = tensors.FromFlatDataAndDimensions(toInt64(b.Lengths), b.Size)
	ids = tensors.FromFlatDataAndDimensions(toInt64(b.IDs), b.Size)
	return
}

func toInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}
