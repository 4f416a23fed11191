package transform

import (
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Image is a channels-first float32 image: Data holds Channels planes of
// Height x Width values each.
type Image struct {
	Data                    []float32
	Channels, Height, Width int
}

// Shape returns [channels, height, width].
func (t *Image) Shape() []int { return []int{t.Channels, t.Height, t.Width} }

// ToTensor converts img to a 3 x H x W Image with values in [0, 1]. The alpha
// channel, if any, is dropped.
func ToTensor(img image.Image) *Image {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	plane := w * h
	t := &Image{
		Data:     make([]float32, 3*plane),
		Channels: 3,
		Height:   h,
		Width:    w,
	}
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range w {
			px := row[x*4 : x*4+3]
			pos := y*w + x
			t.Data[pos] = float32(px[0]) / 255
			t.Data[plane+pos] = float32(px[1]) / 255
			t.Data[2*plane+pos] = float32(px[2]) / 255
		}
	}
	return t
}

// Normalize applies (x - mean[c]) / std[c] in place on every channel.
func (t *Image) Normalize(mean, std [3]float32) error {
	if t.Channels != 3 {
		return errors.Errorf("normalize expects 3 channels, got %d", t.Channels)
	}
	plane := t.Height * t.Width
	for c := range 3 {
		if std[c] == 0 {
			return errors.Errorf("zero std for channel %d", c)
		}
		values := t.Data[c*plane : (c+1)*plane]
		for i, v := range values {
			values[i] = (v - mean[c]) / std[c]
		}
	}
	return nil
}

// Pipeline runs a list of Ops, converts the result with ToTensor and
// normalizes it.
type Pipeline struct {
	Ops       []Op
	Mean, Std [3]float32
}

// Apply transforms img. rng is used by random ops and may be nil for
// deterministic pipelines.
func (p *Pipeline) Apply(img image.Image, rng *rand.Rand) (*Image, error) {
	var err error
	for _, op := range p.Ops {
		img, err = op.Apply(img, rng)
		if err != nil {
			return nil, err
		}
	}
	t := ToTensor(img)
	if err := t.Normalize(p.Mean, p.Std); err != nil {
		return nil, err
	}
	return t, nil
}

// OutputSize returns the height and width of images produced by the pipeline,
// as given by its last resize or crop op.
func (p *Pipeline) OutputSize() (height, width int) {
	for _, op := range p.Ops {
		switch o := op.(type) {
		case Resize:
			height, width = o.Height, o.Width
		case RandomCrop:
			height, width = o.Size, o.Size
		case CenterCrop:
			height, width = o.Size, o.Size
		}
	}
	return
}

// TrainPipeline is the augmenting pipeline used for the training split:
// resize to 278x278, rotate by up to 90 degrees, take a random 256x256 crop.
func TrainPipeline() *Pipeline {
	return &Pipeline{
		Ops: []Op{
			Resize{Width: 278, Height: 278},
			RandomRotation{Min: 0, Max: 90},
			RandomCrop{Size: 256},
		},
		Mean: ImageNetMean,
		Std:  ImageNetStd,
	}
}

// EvalPipeline resizes to 256x256 without augmentation.
func EvalPipeline() *Pipeline {
	return &Pipeline{
		Ops:  []Op{Resize{Width: 256, Height: 256}},
		Mean: ImageNetMean,
		Std:  ImageNetStd,
	}
}
