// Package config holds the options shared by the dataset loaders and the
// command line tools. Options can be read from a YAML or JSON file and then
// overridden by command line flags.
package config

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options configures where data is read from and how it is batched.
type Options struct {
	// DataPath is the prefix of the caption and filename lists, e.g. "data/rsicd_precomp/".
	DataPath string `yaml:"data_path" json:"data_path"`

	// ImagePath is the prefix prepended to every image reference.
	ImagePath string `yaml:"image_path" json:"image_path"`

	// VocabPath is the vocabulary JSON file.
	VocabPath string `yaml:"vocab_path" json:"vocab_path"`

	// BatchSize is used for the training split, BatchSizeVal for val and test.
	BatchSize    int `yaml:"batch_size" json:"batch_size"`
	BatchSizeVal int `yaml:"batch_size_val" json:"batch_size_val"`

	// Workers bounds how many samples of a batch are loaded concurrently (0 = sequential).
	Workers int `yaml:"workers" json:"workers"`

	// Prefetch, if > 0, wraps loaders in a gomlx parallel dataset with that many goroutines.
	Prefetch int `yaml:"prefetch" json:"prefetch"`

	// Distributed shards the training split across WorldSize replicas; this process is Rank.
	Distributed bool `yaml:"distributed" json:"distributed"`
	Rank        int  `yaml:"rank" json:"rank"`
	WorldSize   int  `yaml:"world_size" json:"world_size"`

	// Seed for shuffling and augmentation. Distributed training uses it as
	// given so all replicas agree on the order; otherwise 0 picks a time
	// based seed.
	Seed int64 `yaml:"seed" json:"seed"`

	// ImageCacheSize is the number of decoded images kept in memory (0 disables the cache).
	ImageCacheSize int `yaml:"image_cache_size" json:"image_cache_size"`

	// TokenCacheDir, if set, stores tokenized captions per split to speed up start up.
	TokenCacheDir string `yaml:"token_cache_dir" json:"token_cache_dir"`
}

// Default returns the options used when nothing is configured.
func Default() *Options {
	return &Options{
		DataPath:       "data/",
		ImagePath:      "data/images/",
		VocabPath:      "vocab/vocab.json",
		BatchSize:      100,
		BatchSizeVal:   100,
		Workers:        0,
		WorldSize:      1,
		ImageCacheSize: 512,
	}
}

// Load reads options from path on top of Default. Files ending in .json are
// parsed as JSON, anything else as YAML.
func Load(path string) (*Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, opts)
	} else {
		err = yaml.Unmarshal(data, opts)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %q", path)
	}
	return opts, nil
}

// Validate checks the options are consistent.
func (o *Options) Validate() error {
	if o.BatchSize <= 0 {
		return errors.Errorf("batch_size must be positive, got %d", o.BatchSize)
	}
	if o.BatchSizeVal <= 0 {
		return errors.Errorf("batch_size_val must be positive, got %d", o.BatchSizeVal)
	}
	if o.Workers < 0 || o.Prefetch < 0 || o.ImageCacheSize < 0 {
		return errors.New("workers, prefetch and image_cache_size must not be negative")
	}
	if o.Distributed {
		if o.WorldSize <= 0 {
			return errors.Errorf("world_size must be positive, got %d", o.WorldSize)
		}
		if o.Rank < 0 || o.Rank >= o.WorldSize {
			return errors.Errorf("rank %d out of range [0, %d)", o.Rank, o.WorldSize)
		}
	}
	return nil
}

// RegisterFlags binds every option to a flag on fs, using the current values
// as defaults. Call it after Load so flags given on the command line win over
// the file.
func (o *Options) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.DataPath, "data-path", o.DataPath, "prefix of the <split>_caps*.txt and <split>_filename*.txt files")
	fs.StringVar(&o.ImagePath, "image-path", o.ImagePath, "prefix prepended to image references")
	fs.StringVar(&o.VocabPath, "vocab", o.VocabPath, "vocabulary JSON file")
	fs.IntVar(&o.BatchSize, "batch-size", o.BatchSize, "training batch size")
	fs.IntVar(&o.BatchSizeVal, "batch-size-val", o.BatchSizeVal, "validation/test batch size")
	fs.IntVar(&o.Workers, "workers", o.Workers, "samples loaded concurrently per batch (0 = sequential)")
	fs.IntVar(&o.Prefetch, "prefetch", o.Prefetch, "background goroutines generating batches (0 = disabled)")
	fs.BoolVar(&o.Distributed, "distributed", o.Distributed, "shard the training split across replicas")
	fs.IntVar(&o.Rank, "rank", o.Rank, "replica rank when distributed")
	fs.IntVar(&o.WorldSize, "world-size", o.WorldSize, "number of replicas when distributed")
	fs.Int64Var(&o.Seed, "seed", o.Seed, "random seed (0 = time based unless -distributed)")
	fs.IntVar(&o.ImageCacheSize, "image-cache", o.ImageCacheSize, "number of decoded images cached in memory")
	fs.StringVar(&o.TokenCacheDir, "token-cache-dir", o.TokenCacheDir, "directory for tokenized caption caches")
}

// Parse registers the option flags plus -config on fs and parses args. If
// -config names a file, options are loaded from it and the flags explicitly
// given in args are applied on top. The result is validated.
func Parse(fs *flag.FlagSet, args []string) (*Options, error) {
	opts := Default()
	configPath := fs.String("config", "", "YAML or JSON options file")
	opts.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		loaded, err := Load(*configPath)
		if err != nil {
			return nil, err
		}
		shadow := flag.NewFlagSet(fs.Name(), flag.ContinueOnError)
		loaded.RegisterFlags(shadow)
		var setErr error
		fs.Visit(func(f *flag.Flag) {
			if target := shadow.Lookup(f.Name); target != nil && setErr == nil {
				setErr = errors.Wrapf(target.Value.Set(f.Value.String()), "flag -%s", f.Name)
			}
		})
		if setErr != nil {
			return nil, setErr
		}
		opts = loaded
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}
