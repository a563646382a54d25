package analysis

import (
	"fmt"

	"github.com/kljensen/snowball/english"
)

// Stemmer reduces a lower-case word to its stem.
type Stemmer interface {
	Stem(word string) string
}

// Snowball stems with the English (Porter2) Snowball algorithm.
type Snowball struct{}

// Stem returns the Snowball stem of word.
func (Snowball) Stem(word string) string {
	return english.Stem(word, true)
}

// NewStemmer returns the stemmer registered under name ("porter" or "snowball").
func NewStemmer(name string) (Stemmer, error) {
	switch name {
	case "", "porter":
		return Porter{}, nil
	case "snowball":
		return Snowball{}, nil
	}
	return nil, fmt.Errorf("unknown stemmer %q", name)
}
