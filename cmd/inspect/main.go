// inspect loads one split of a precomputed caption dataset, runs a full epoch
// through the loader and reports batch, memory and caption statistics.
//
// Examples:
//
//	inspect -config opts.yaml -split val
//	inspect -data-path data/rsicd_precomp/ -build-vocab -vocab-threshold 5 -split train
//
// With -build-vocab the vocabulary is first built from the split's captions
// and written to -vocab.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/precompCaptions/config"
	"github.com/Noofbiz/precompCaptions/datasets"
	"github.com/Noofbiz/precompCaptions/tokenize"
	"github.com/Noofbiz/precompCaptions/vocab"
)

var (
	flagSplit          = flag.String("split", "val", "split to inspect: train, val or test")
	flagBuildVocab     = flag.Bool("build-vocab", false, "build the vocabulary from the split's captions and save it to -vocab")
	flagVocabThreshold = flag.Int("vocab-threshold", 5, "minimum count of a word to enter a built vocabulary")
	flagMaxBatches     = flag.Int("max-batches", 0, "stop after this many batches (0 = full epoch)")
	flagHistogram      = flag.String("hist", "plots/caption_lengths.png", "caption length histogram PNG (empty to skip)")
)

// epochStats accumulates what inspect reports about an epoch.
type epochStats struct {
	batches     int
	samples     int
	bytes       uint64
	tokens      int
	unknown     int
	lengths     []float64
	ids         map[int64]struct{}
	maxBatchLen int
}

func main() {
	klog.InitFlags(nil)
	opts, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		klog.Exitf("invalid options: %v", err)
	}
	split := datasets.Split(*flagSplit)

	if *flagBuildVocab {
		if err := buildVocab(opts, split); err != nil {
			klog.Exitf("failed to build vocabulary: %v", err)
		}
	}
	v, err := vocab.Load(opts.VocabPath)
	if err != nil {
		klog.Exitf("failed to load vocabulary: %v", err)
	}
	klog.Infof("Vocabulary %s: %s words", opts.VocabPath, humanize.Comma(int64(v.Len())))

	batchSize := opts.BatchSizeVal
	if split == datasets.Train {
		batchSize = opts.BatchSize
	}
	loader, err := datasets.NewPrecompLoader(opts, split, v, batchSize, split == datasets.Train, opts.Workers)
	if err != nil {
		klog.Exitf("failed to create loader: %v", err)
	}
	ds := loader.Dataset().(*datasets.PrecompDataset)
	fmt.Printf("Split %s: %s captions, %s images, %d captions per image\n",
		split, humanize.Comma(int64(ds.Len())), humanize.Comma(int64(ds.NumImages())), ds.RedundancyDivisor())

	numBatches := loader.Len()
	if *flagMaxBatches > 0 {
		numBatches = min(numBatches, *flagMaxBatches)
	}
	start := time.Now()
	stats, err := runEpoch(datasets.WithPrefetch(loader, opts.Prefetch), numBatches, v.UnknownID())
	if err != nil {
		klog.Exitf("failed to iterate split %s: %v", split, err)
	}
	elapsed := time.Since(start)

	fmt.Printf("Batches: %d (batch size %d) in %s, %.1f samples/s\n",
		stats.batches, batchSize, elapsed.Round(time.Millisecond), float64(stats.samples)/elapsed.Seconds())
	fmt.Printf("Samples: %s (%s distinct captions)\n", humanize.Comma(int64(stats.samples)), humanize.Comma(int64(len(stats.ids))))
	fmt.Printf("Tensor memory: %s total, %s per batch\n",
		humanize.Bytes(stats.bytes), humanize.Bytes(stats.bytes/uint64(max(stats.batches, 1))))
	if stats.tokens > 0 {
		fmt.Printf("Tokens: %s, %.2f%% unknown, longest batch %d\n",
			humanize.Comma(int64(stats.tokens)), 100*float64(stats.unknown)/float64(stats.tokens), stats.maxBatchLen)
	}

	if *flagHistogram != "" && len(stats.lengths) > 0 {
		title := fmt.Sprintf("Caption lengths (%s)", split)
		if err := plotLengths(*flagHistogram, title, stats.lengths); err != nil {
			klog.Exitf("failed to plot caption lengths: %v", err)
		}
		fmt.Printf("Caption length histogram written to %s\n", *flagHistogram)
	}
}

// buildVocab builds a vocabulary from the captions of split and saves it to
// opts.VocabPath.
func buildVocab(opts *config.Options, split datasets.Split) error {
	captions, err := datasets.ReadCaptions(opts.DataPath, split)
	if err != nil {
		return err
	}
	v, err := vocab.Build(captions, *flagVocabThreshold, tokenize.Words)
	if err != nil {
		return err
	}
	if err := v.Save(opts.VocabPath); err != nil {
		return err
	}
	klog.Infof("Built vocabulary of %d words from %d captions into %s", v.Len(), len(captions), opts.VocabPath)
	return nil
}

// runEpoch yields up to numBatches batches from ds and collects statistics.
func runEpoch(ds train.Dataset, numBatches int, unknownID int) (*epochStats, error) {
	stats := &epochStats{ids: make(map[int64]struct{})}
	bar := progressbar.Default(int64(numBatches), "Batches")
	defer bar.Finish()
	for stats.batches < numBatches {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, t := range inputs {
			stats.bytes += uint64(t.Shape().Memory())
		}
		for _, t := range labels {
			stats.bytes += uint64(t.Shape().Memory())
		}

		targets := inputs[1].Value().([][]int64)
		lengths := inputs[2].Value().([]int64)
		for i, row := range targets {
			length := int(lengths[i])
			stats.lengths = append(stats.lengths, float64(length))
			stats.tokens += length
			for _, id := range row[:length] {
				if int(id) == unknownID {
					stats.unknown++
				}
			}
		}
		if len(targets) > 0 {
			stats.maxBatchLen = max(stats.maxBatchLen, len(targets[0]))
		}
		for _, id := range labels[0].Value().([]int64) {
			stats.ids[id] = struct{}{}
		}
		stats.samples += len(targets)
		stats.batches++
		_ = bar.Add(1)
	}
	return stats, nil
}
