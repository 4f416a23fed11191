package main

import (
	"image/color"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotLengths writes a histogram of caption lengths to outPath as PNG, one
// bin per length.
func plotLengths(outPath, title string, lengths []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "tokens"
	p.Y.Label.Text = "captions"

	bins := int(slices.Max(lengths)-slices.Min(lengths)) + 1
	hist, err := plotter.NewHist(plotter.Values(lengths), bins)
	if err != nil {
		return err
	}
	hist.FillColor = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	hist.LineStyle.Width = vg.Points(0.5)
	p.Add(hist)
	p.Add(plotter.NewGrid())

	if err := ensureDir(filepath.Dir(outPath)); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, outPath)
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
