package datasets

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/precompCaptions/tokenize"
)

// tokenCacheVersion must be bumped whenever tokenization changes.
const tokenCacheVersion = 2

// ProgressInterval is how often PrecomputeTokens logs its progress.
var ProgressInterval = 5 * time.Second

// tokenCacheFormat is the on-disk representation of precomputed tokens.
// Tokens are stored before <unk> mapping, so one cache serves any
// vocabulary.
type tokenCacheFormat struct {
	Version     int
	Split       string
	NumCaptions int
	CreatedAt   int64
	Tokens      [][]string
}

// TokenCachePath returns where the token cache of split lives under dir.
func TokenCachePath(dir string, split Split) string {
	return filepath.Join(dir, string(split)+"_tokens.gob")
}

// HasPrecomputedTokens reports whether captions are served from memory.
func (d *PrecompDataset) HasPrecomputedTokens() bool { return d.tokens != nil }

// PrecomputeTokens tokenizes every caption using up to workers goroutines
// (runtime.NumCPU() if workers <= 0). Later calls to Tokens and Example are
// served from memory.
func (d *PrecompDataset) PrecomputeTokens(workers int) error {
	if d.tokens != nil {
		return nil
	}
	n := len(d.captions)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	tokens := make([]tokenize.Tokens, n)

	var done atomic.Int64
	ticker := time.NewTicker(ProgressInterval)
	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				count := done.Load()
				klog.Infof("Tokenizing %s: %d/%d (%.1f%%)", d.Split, count, n, 100*float64(count)/float64(max(n, 1)))
			case <-stopProgress:
				return
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range n {
		g.Go(func() error {
			ts, err := d.tokenizer.Tokenize(d.captions[i])
			if err != nil {
				return errors.Wrapf(err, "caption %d", i)
			}
			tokens[i] = ts
			done.Add(1)
			return nil
		})
	}
	err := g.Wait()
	close(stopProgress)
	<-progressDone
	if err != nil {
		return err
	}
	klog.V(1).Infof("Tokenized %d captions of split %q", n, d.Split)
	d.tokens = tokens
	return nil
}

// SaveTokenCache writes the precomputed tokens to path, atomically. Tokens
// are precomputed first if needed.
func (d *PrecompDataset) SaveTokenCache(path string) error {
	if path == "" {
		return errors.New("empty cache path")
	}
	if err := d.PrecomputeTokens(0); err != nil {
		return errors.Wrap(err, "precompute before save")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp cache file")
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	tokens := make([][]string, len(d.tokens))
	for i, ts := range d.tokens {
		tokens[i] = ts
	}
	cache := tokenCacheFormat{
		Version:     tokenCacheVersion,
		Split:       string(d.Split),
		NumCaptions: len(d.captions),
		CreatedAt:   time.Now().Unix(),
		Tokens:      tokens,
	}
	if err := gob.NewEncoder(tmpFile).Encode(&cache); err != nil {
		return errors.Wrap(err, "encode token cache")
	}
	if err := tmpFile.Sync(); err != nil {
		klog.Warningf("Sync temp cache file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp cache file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename temp cache to target")
	}
	return nil
}

// LoadTokenCache reads tokens saved by SaveTokenCache. The cache is rejected
// if it was written by another version, for another split or for a different
// number of captions.
func (d *PrecompDataset) LoadTokenCache(path string) error {
	if path == "" {
		return errors.New("empty cache path")
	}
	fh, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open cache file %s", path)
	}
	defer fh.Close()

	var cache tokenCacheFormat
	if err := gob.NewDecoder(fh).Decode(&cache); err != nil {
		return errors.Wrapf(err, "decode cache %s", path)
	}
	switch {
	case cache.Version != tokenCacheVersion:
		return errors.Errorf("cache version mismatch: cache=%d expected=%d", cache.Version, tokenCacheVersion)
	case cache.Split != string(d.Split):
		return errors.Errorf("cache split mismatch: cache=%q expected=%q", cache.Split, d.Split)
	case cache.NumCaptions != len(d.captions) || len(cache.Tokens) != len(d.captions):
		return errors.Errorf("cache size mismatch: cache=%d expected=%d", len(cache.Tokens), len(d.captions))
	}

	tokens := make([]tokenize.Tokens, len(cache.Tokens))
	for i, ts := range cache.Tokens {
		tokens[i] = ts
	}
	d.tokens = tokens
	return nil
}
