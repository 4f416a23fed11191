// Package transform decodes images and turns them into normalized
// channels-first float32 tensors, optionally applying random augmentation.
package transform

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// ImageNet channel statistics.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Op is one image transformation step. Random ops draw from rng; rng is
// never shared between goroutines by the callers of this package.
type Op interface {
	Apply(img image.Image, rng *rand.Rand) (image.Image, error)
}

// Resize scales the image to exactly Width x Height, ignoring aspect ratio.
type Resize struct {
	Width, Height int
}

// Apply implements Op.
func (op Resize) Apply(img image.Image, _ *rand.Rand) (image.Image, error) {
	if op.Width <= 0 || op.Height <= 0 {
		return nil, errors.Errorf("invalid resize to %dx%d", op.Width, op.Height)
	}
	return imaging.Resize(img, op.Width, op.Height, imaging.Linear), nil
}

// RandomRotation rotates the image counter-clockwise by an angle drawn
// uniformly from [Min, Max] degrees. The output keeps the input size, corners
// are filled with black.
type RandomRotation struct {
	Min, Max float64
}

// Apply implements Op.
func (op RandomRotation) Apply(img image.Image, rng *rand.Rand) (image.Image, error) {
	if op.Max < op.Min {
		return nil, errors.Errorf("invalid rotation range [%g, %g]", op.Min, op.Max)
	}
	angle := op.Min + rng.Float64()*(op.Max-op.Min)
	size := img.Bounds().Size()
	rotated := imaging.Rotate(img, angle, color.Black)
	return imaging.CropCenter(rotated, size.X, size.Y), nil
}

// RandomCrop cuts a Size x Size square at a uniformly random position.
type RandomCrop struct {
	Size int
}

// Apply implements Op.
func (op RandomCrop) Apply(img image.Image, rng *rand.Rand) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if op.Size <= 0 || op.Size > w || op.Size > h {
		return nil, errors.Errorf("crop size %d invalid for %dx%d image", op.Size, w, h)
	}
	x0 := b.Min.X + rng.Intn(w-op.Size+1)
	y0 := b.Min.Y + rng.Intn(h-op.Size+1)
	return imaging.Crop(img, image.Rect(x0, y0, x0+op.Size, y0+op.Size)), nil
}

// CenterCrop cuts a Size x Size square from the center of the image.
type CenterCrop struct {
	Size int
}

// Apply implements Op.
func (op CenterCrop) Apply(img image.Image, _ *rand.Rand) (image.Image, error) {
	b := img.Bounds()
	if op.Size <= 0 || op.Size > b.Dx() || op.Size > b.Dy() {
		return nil, errors.Errorf("crop size %d invalid for %dx%d image", op.Size, b.Dx(), b.Dy())
	}
	return imaging.CropCenter(img, op.Size, op.Size), nil
}

// Open decodes the image file at path. Any alpha channel is ignored later by
// ToTensor, which matches an RGB conversion.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", path)
	}
	return img, nil
}
