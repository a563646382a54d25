package indexer

import (
	"strings"
	"unicode"

	"github.com/hyperjump/qexpand/internal/models"
)

// Preprocess normalizes text for indexing (trim, collapse whitespace, drop control characters).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// preprocessPlay normalizes the text fields of p in place.
func preprocessPlay(p *models.Play) {
	p.Play = Preprocess(p.Play)
	p.NextPlay = Preprocess(p.NextPlay)
	p.PreviousPlay = Preprocess(p.PreviousPlay)
	p.Minute = strings.TrimSpace(p.Minute)
	players := p.Players[:0]
	for _, name := range p.Players {
		if name = Preprocess(name); name != "" {
			players = append(players, name)
		}
	}
	if len(players) == 0 {
		players = nil
	}
	p.Players = players
}
