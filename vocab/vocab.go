// Package vocab holds the word <-> id mapping used to turn caption tokens into
// integer ids.
//
// Vocabularies are stored as JSON:
//
//	{"word2idx": {"<pad>": 0, ...}, "idx2word": {"0": "<pad>", ...}, "idx": 4}
package vocab

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// Special tokens seeded by Build, in id order.
const (
	PadToken   = "<pad>"
	StartToken = "<start>"
	EndToken   = "<end>"
	UnkToken   = "<unk>"
)

// Vocabulary maps tokens to ids and back. It is read-only after construction
// and therefore safe for concurrent use.
type Vocabulary struct {
	word2idx map[string]int
	idx2word map[int]string
	idx      int
	unkID    int
}

// New returns an empty vocabulary. Words are added with Add; the vocabulary
// is only usable for lookups once UnkToken has been added.
func New() *Vocabulary {
	return &Vocabulary{
		word2idx: make(map[string]int),
		idx2word: make(map[int]string),
		unkID:    -1,
	}
}

// Add appends word with the next free id. Adding an existing word is a no-op
// and returns its current id.
func (v *Vocabulary) Add(word string) int {
	if id, ok := v.word2idx[word]; ok {
		return id
	}
	id := v.idx
	v.word2idx[word] = id
	v.idx2word[id] = word
	v.idx++
	if word == UnkToken {
		v.unkID = id
	}
	return id
}

// Lookup returns the id of token, or the id of UnkToken if token is unknown.
func (v *Vocabulary) Lookup(token string) int {
	if id, ok := v.word2idx[token]; ok {
		return id
	}
	return v.unkID
}

// Contains reports whether token is part of the vocabulary.
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.word2idx[token]
	return ok
}

// Word returns the token with the given id.
func (v *Vocabulary) Word(id int) (string, bool) {
	w, ok := v.idx2word[id]
	return w, ok
}

// UnknownID is the id returned by Lookup for out of vocabulary tokens.
func (v *Vocabulary) UnknownID() int { return v.unkID }

// Len returns the number of words.
func (v *Vocabulary) Len() int { return len(v.word2idx) }

// serialized is the JSON layout of a vocabulary file. idx2word keys are
// decimal strings since JSON objects only have string keys.
type serialized struct {
	Word2Idx map[string]int    `json:"word2idx"`
	Idx2Word map[string]string `json:"idx2word"`
	Idx      int               `json:"idx"`
}

// Load reads a vocabulary JSON file.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary %q", path)
	}
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "failed to parse vocabulary %q", path)
	}
	if len(s.Word2Idx) == 0 {
		return nil, errors.Errorf("vocabulary %q has no words", path)
	}

	v := New()
	v.idx = s.Idx
	for word, id := range s.Word2Idx {
		v.word2idx[word] = id
		if id >= v.idx {
			v.idx = id + 1
		}
	}
	if len(s.Idx2Word) > 0 {
		for key, word := range s.Idx2Word {
			id, err := strconv.Atoi(key)
			if err != nil {
				return nil, errors.Wrapf(err, "vocabulary %q: invalid idx2word key %q", path, key)
			}
			v.idx2word[id] = word
		}
	} else {
		for word, id := range s.Word2Idx {
			v.idx2word[id] = word
		}
	}

	unk, ok := v.word2idx[UnkToken]
	if !ok {
		return nil, errors.Errorf("vocabulary %q has no %s token", path, UnkToken)
	}
	v.unkID = unk
	return v, nil
}

// Save writes the vocabulary to path in the same JSON format read by Load.
func (v *Vocabulary) Save(path string) error {
	s := serialized{
		Word2Idx: v.word2idx,
		Idx2Word: make(map[string]string, len(v.idx2word)),
		Idx:      v.idx,
	}
	for id, word := range v.idx2word {
		s.Idx2Word[strconv.Itoa(id)] = word
	}
	data, err := json.Marshal(&s)
	if err != nil {
		return errors.Wrap(err, "failed to encode vocabulary")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write vocabulary %q", path)
	}
	return nil
}

// TokenizeFunc splits a raw caption into tokens.
type TokenizeFunc func(caption []byte) ([]string, error)

// Build creates a vocabulary from captions. Words that occur at least
// threshold times are kept, in order of first appearance, after the special
// tokens PadToken, StartToken, EndToken and UnkToken (ids 0 to 3).
func Build(captions [][]byte, threshold int, tokenize TokenizeFunc) (*Vocabulary, error) {
	counts := make(map[string]int)
	var order []string
	for i, caption := range captions {
		tokens, err := tokenize(caption)
		if err != nil {
			return nil, errors.Wrapf(err, "caption %d", i)
		}
		for _, tok := range tokens {
			if _, seen := counts[tok]; !seen {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	v := New()
	for _, special := range []string{PadToken, StartToken, EndToken, UnkToken} {
		v.Add(special)
	}
	for _, word := range order {
		if counts[word] >= threshold {
			v.Add(word)
		}
	}
	return v, nil
}
