// Package analysis turns raw play text into normalized terms: splitting, case folding,
// optional stemming, and the length filter that bounds index noise.
package analysis

import (
	"iter"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinTermLength is the shortest accepted term, in runes.
	MinTermLength = 2
	// MaxTermLength is the longest accepted term, in runes.
	MaxTermLength = 9
)

// Tokenizer splits text into normalized terms. The zero value does not stem.
type Tokenizer struct {
	stemmer Stemmer
}

// NewTokenizer returns a tokenizer that applies stemmer to every token.
// A nil stemmer disables stemming.
func NewTokenizer(stemmer Stemmer) *Tokenizer {
	return &Tokenizer{stemmer: stemmer}
}

// Stemming reports whether the tokenizer stems tokens.
func (t *Tokenizer) Stemming() bool {
	return t != nil && t.stemmer != nil
}

// Tokens returns the normalized terms of text in order. The sequence is lazy and
// may be ranged over any number of times.
func (t *Tokenizer) Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for raw := range splitRaw(text) {
			term, ok := t.normalize(raw)
			if !ok {
				continue
			}
			if !yield(term) {
				return
			}
		}
	}
}

// Tokenize returns the normalized terms of text as a slice.
func (t *Tokenizer) Tokenize(text string) []string {
	return slices.Collect(t.Tokens(text))
}

// normalize lower-cases and stems raw, then applies the length filter.
func (t *Tokenizer) normalize(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	term := strings.ToLower(raw)
	if t.Stemming() {
		term = t.stemmer.Stem(term)
	}
	n := utf8.RuneCountInString(term)
	if n < MinTermLength || n > MaxTermLength {
		return "", false
	}
	return term, true
}

// splitRaw yields the pieces of text between delimiters, including empty pieces.
// Delimiters are whitespace, the characters ?!.][}{,-)( and the possessive 's.
func splitRaw(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := 0
		for i := 0; i < len(text); {
			if isPossessive(text[i:]) {
				if !yield(text[start:i]) {
					return
				}
				i += 2
				start = i
				continue
			}
			r, size := utf8.DecodeRuneInString(text[i:])
			if isDelimiter(r) {
				if !yield(text[start:i]) {
					return
				}
				start = i + size
			}
			i += size
		}
		yield(text[start:])
	}
}

func isPossessive(s string) bool {
	return len(s) >= 2 && s[0] == '\'' && (s[1] == 's' || s[1] == 'S')
}

func isDelimiter(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '?', '!', '.', ']', '[', '}', '{', ',', '-', ')', '(':
		return true
	}
	return false
}
