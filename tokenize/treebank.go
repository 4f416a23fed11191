package tokenize

import (
	"regexp"
	"strings"
)

// rule is a single regexp substitution of the Treebank tokenizer.
type rule struct {
	re   *regexp.Regexp
	repl string
}

func r(pattern, repl string) rule {
	return rule{re: regexp.MustCompile(pattern), repl: repl}
}

var (
	startingQuotes = []rule{
		r("([«“‘„]|`+)", " $1 "),
		r(`^"`, "``"),
		r("(``)", " $1 "),
		r(`([ (\[{<])("|'')`, "$1 `` "),
	}

	punctuation = []rule{
		r(`([^.])(\.)([\])}>"']*)\s*$`, "$1 $2 $3 "),
		r(`([:,])([^\d])`, " $1 $2"),
		r(`([:,])$`, " $1 "),
		r(`\.{2,}`, " $0 "),
		r(`[;@#$%&]`, " $0 "),
		r(`[?!]`, " $0 "),
		r(`([^'])' `, "$1 ' "),
		r(`[*]`, " $0 "),
	}

	parensBrackets = r(`[\][(){}<>]`, " $0 ")
	doubleDashes   = r(`--`, " -- ")

	endingQuotes = []rule{
		r(`([»”’])`, " $1 "),
		r(`''`, " '' "),
		r(`"`, " '' "),
		r(`([^' ])('[sS]|'[mM]|'[dD]|') `, "$1 $2 "),
		r(`([^' ])('ll|'LL|'re|'RE|'ve|'VE|n't|N'T) `, "$1 $2 "),
	}

	contractions = []rule{
		r(`(?i)\b(can)(not)\b`, " $1 $2 "),
		r(`(?i)\b(d)('ye)\b`, " $1 $2 "),
		r(`(?i)\b(gim)(me)\b`, " $1 $2 "),
		r(`(?i)\b(gon)(na)\b`, " $1 $2 "),
		r(`(?i)\b(got)(ta)\b`, " $1 $2 "),
		r(`(?i)\b(lem)(me)\b`, " $1 $2 "),
		r(`(?i)\b(more)('n)\b`, " $1 $2 "),
		r(`(?i)\b(wan)(na)(\s)`, " $1 $2 $3"),
		r(`(?i) ('t)(is)\b`, " $1 $2 "),
		r(`(?i) ('t)(was)\b`, " $1 $2 "),
	}

	// singleQuote matches a quote opening a one letter word. Quotes before
	// m, t, s, d and n are clitics and stay attached.
	singleQuote = regexp.MustCompile(`'\w\b`)

	// sentenceEnd marks a '.', '?' or '!' (plus closing quotes/brackets)
	// followed by whitespace: the boundaries punkt would find in captions.
	sentenceEnd = regexp.MustCompile(`[.?!][\])}>"'”’]*\s+`)

	// initials matches dotted abbreviations such as "u.s" or "e.g".
	initials = regexp.MustCompile(`^[a-z](\.[a-z])+$`)
)

// Abbreviations are the words, lower case and without their final period,
// after which a period does not end a sentence.
var Abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "st": {}, "jr": {}, "sr": {}, "vs": {},
	"etc": {}, "prof": {}, "rev": {}, "gen": {}, "col": {}, "capt": {}, "lt": {},
	"sgt": {}, "gov": {}, "sen": {}, "rep": {}, "mt": {}, "ft": {}, "ave": {},
	"blvd": {}, "rd": {}, "inc": {}, "co": {}, "corp": {}, "ltd": {}, "dept": {},
	"approx": {}, "jan": {}, "feb": {}, "mar": {}, "apr": {}, "aug": {}, "sep": {},
	"sept": {}, "oct": {}, "nov": {}, "dec": {}, "u.s": {}, "u.k": {}, "e.g": {},
	"i.e": {}, "a.m": {}, "p.m": {},
}

// isAbbreviation reports whether word, the text before a period, is a known
// abbreviation, a dotted abbreviation or a single letter initial.
func isAbbreviation(word string) bool {
	word = strings.ToLower(strings.TrimLeft(word, "\"'`([{<“‘«"))
	if _, ok := Abbreviations[word]; ok {
		return true
	}
	if len(word) == 1 {
		return word[0] >= 'a' && word[0] <= 'z'
	}
	return initials.MatchString(word)
}

// splitQuotes separates a quote from a following one letter word.
func splitQuotes(text string) string {
	return singleQuote.ReplaceAllStringFunc(text, func(m string) string {
		switch strings.ToLower(m[1:]) {
		case "m", "t", "s", "d", "n":
			return m
		}
		return "' " + m[1:]
	})
}

func apply(rules []rule, text string) string {
	for _, rl := range rules {
		text = rl.re.ReplaceAllString(text, rl.repl)
	}
	return text
}

// Sentences splits text at sentence-final punctuation followed by
// whitespace. A period directly after an abbreviation or an initial does not
// end a sentence. Empty sentences are dropped.
func Sentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if text[loc[0]] == '.' && isSpace(text[loc[0]+1]) {
			wordStart := strings.LastIndexAny(text[start:loc[0]], " \t\n\r\v\f") + start + 1
			if isAbbreviation(text[wordStart:loc[0]]) {
				continue
			}
		}
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// TreebankWords tokenizes a single sentence following the Penn Treebank
// conventions: punctuation is split off, double quotes become `` and '',
// and clitics such as 's and n't become separate tokens.
func TreebankWords(sentence string) Tokens {
	text := apply(startingQuotes, sentence)
	text = splitQuotes(text)
	text = apply(punctuation, text)
	text = parensBrackets.re.ReplaceAllString(text, parensBrackets.repl)
	text = doubleDashes.re.ReplaceAllString(text, doubleDashes.repl)
	text = " " + text + " "
	text = apply(endingQuotes, text)
	text = apply(contractions, text)
	return strings.Fields(text)
}

// WordTokenize splits text into sentences and each sentence into Treebank
// tokens.
func WordTokenize(text string) Tokens {
	var tokens Tokens
	for _, sentence := range Sentences(text) {
		tokens = append(tokens, TreebankWords(sentence)...)
	}
	return tokens
}
