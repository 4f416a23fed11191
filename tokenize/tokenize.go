// Package tokenize turns raw caption lines into word tokens.
//
// Captions are lower-cased byte-wise (ASCII only), decoded as UTF-8, split with
// a Penn Treebank style word tokenizer and passed through a chain of TokenFuncs
// that drop punctuation and map out-of-vocabulary words to the unknown token.
package tokenize

import (
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Tokens is a slice of word tokens.
type Tokens []string

// TokenFunc transforms a token stream.
type TokenFunc func(Tokens) Tokens

// Processor applies a list of TokenFuncs in order.
type Processor struct {
	filters []TokenFunc
}

// NewProcessor creates a Processor running funcs in the given order.
func NewProcessor(funcs ...TokenFunc) *Processor {
	p := &Processor{}
	p.filters = append(p.filters, funcs...)
	return p
}

// Apply runs all filters over ts.
func (p *Processor) Apply(ts Tokens) Tokens {
	for _, fn := range p.filters {
		ts = fn(ts)
	}
	return ts
}

// Punctuation is the set of tokens dropped from captions.
var Punctuation = map[string]struct{}{
	",": {}, ".": {}, ":": {}, ";": {}, "?": {}, "(": {}, ")": {}, "[": {}, "]": {},
	"&": {}, "!": {}, "*": {}, "@": {}, "#": {}, "$": {}, "%": {},
}

// RemovePunctuation drops tokens that are in Punctuation.
func RemovePunctuation(ts Tokens) Tokens {
	kept := ts[:0]
	for _, t := range ts {
		if _, skip := Punctuation[t]; !skip {
			kept = append(kept, t)
		}
	}
	return kept
}

// Membership is the part of a vocabulary MapUnknown needs.
type Membership interface {
	Contains(token string) bool
}

// MapUnknown returns a TokenFunc replacing every token not in vocab with unk.
func MapUnknown(vocab Membership, unk string) TokenFunc {
	return func(ts Tokens) Tokens {
		for i, t := range ts {
			if !vocab.Contains(t) {
				ts[i] = unk
			}
		}
		return ts
	}
}

// LowerASCII returns a copy of b with ASCII letters lower-cased. Other bytes,
// including multi-byte UTF-8 sequences, are left untouched.
func LowerASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

// CaptionTokenizer converts raw caption bytes into tokens.
type CaptionTokenizer struct {
	processor *Processor
}

// NewCaptionTokenizer returns a tokenizer that removes punctuation and then
// runs the extra filters, if any.
func NewCaptionTokenizer(extra ...TokenFunc) *CaptionTokenizer {
	funcs := append([]TokenFunc{RemovePunctuation}, extra...)
	return &CaptionTokenizer{processor: NewProcessor(funcs...)}
}

// Tokenize lower-cases, decodes and tokenizes a raw caption. It fails if the
// caption is not valid UTF-8.
func (c *CaptionTokenizer) Tokenize(caption []byte) (Tokens, error) {
	lowered := LowerASCII(caption)
	if !utf8.Valid(lowered) {
		return nil, errors.Errorf("caption %q is not valid UTF-8", caption)
	}
	return c.processor.Apply(WordTokenize(string(lowered))), nil
}

// Words tokenizes a raw caption without any filtering. It is the tokenizer
// used when building a vocabulary.
func Words(caption []byte) ([]string, error) {
	lowered := LowerASCII(caption)
	if !utf8.Valid(lowered) {
		return nil, errors.Errorf("caption %q is not valid UTF-8", caption)
	}
	return WordTokenize(string(lowered)), nil
}
