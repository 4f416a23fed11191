package main

// Example command that loads one split of a precomputed caption dataset,
// builds the first batch and converts it into gomlx tensors.
//
// Usage:
//   go run ./datasets/example -data-path data/rsicd_precomp/ -image-path data/rsicd_images/ -vocab vocab/rsicd_splits_vocab.json
//
// Any loader option can also come from a YAML or JSON file given with -config.

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/Noofbiz/precompCaptions/config"
	"github.com/Noofbiz/precompCaptions/datasets"
	"github.com/Noofbiz/precompCaptions/vocab"
)

func main() {
	klog.InitFlags(nil)
	split := flag.String("split", "val", "split to load: train, val or test")
	opts, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		klog.Exitf("invalid options: %v", err)
	}

	v, err := vocab.Load(opts.VocabPath)
	if err != nil {
		klog.Exitf("failed to load vocabulary: %v", err)
	}
	fmt.Printf("Vocabulary: %d words\n", v.Len())

	loader, err := datasets.NewPrecompLoader(opts, datasets.Split(*split), v, opts.BatchSizeVal, false, opts.Workers)
	if err != nil {
		klog.Exitf("failed to create loader: %v", err)
	}
	ds := loader.Dataset().(*datasets.PrecompDataset)
	fmt.Printf("Split %s: %d captions, %d images, %d captions per image, %d batches\n",
		*split, ds.Len(), ds.NumImages(), ds.RedundancyDivisor(), loader.Len())

	batch, err := loader.NextBatch()
	if err != nil {
		klog.Exitf("failed to load first batch: %v", err)
	}
	images, targets, lengths, ids := batch.ToGomlxTensors()
	fmt.Printf("Images:  %s\n", images.Shape())
	fmt.Printf("Targets: %s\n", targets.Shape())
	fmt.Printf("Lengths: %s\n", lengths.Shape())
	fmt.Printf("IDs:     %s\n", ids.Shape())

	// Rows come sorted by caption length, longest first.
	for i := range min(3, batch.Size) {
		fmt.Printf("  #%d (image %d, %d tokens): %s\n",
			batch.IDs[i], batch.ImageIDs[i], batch.Lengths[i], strings.Join(batch.Tokens[i], " "))
	}
}
