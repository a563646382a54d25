// Package models defines core data structures for plays, retrieved documents, result sets, and feedback sessions.
package models

import (
	"strings"
	"time"
)

// Play is one record of the local play-by-play corpus.
type Play struct {
	ID           int       `json:"play_id" db:"id"`
	MatchID      int       `json:"match_id,omitempty" db:"match_id"`
	Minute       string    `json:"minute,omitempty" db:"minute"`
	Play         string    `json:"play" db:"play"`
	NextPlay     string    `json:"next_play,omitempty" db:"next_play"`
	PreviousPlay string    `json:"previous_play,omitempty" db:"previous_play"`
	HomeScore    int       `json:"home_score,omitempty" db:"home_score"`
	AwayScore    int       `json:"away_score,omitempty" db:"away_score"`
	Players      []string  `json:"players,omitempty" db:"players"`
	Source       string    `json:"source,omitempty" db:"source"`
	CreatedAt    time.Time `json:"created_at,omitempty" db:"created_at"`
}

// Document is one retrieved item of a result set.
// ID is optional at the backend boundary; the inverted index builder rejects documents without one.
// Relevant and TermFreq are filled in during a single feedback round.
type Document struct {
	ID           *int           `json:"id,omitempty"`
	Play         string         `json:"play"`
	NextPlay     string         `json:"next_play,omitempty"`
	PreviousPlay string         `json:"previous_play,omitempty"`
	Minute       string         `json:"minute,omitempty"`
	MatchID      int            `json:"match_id,omitempty"`
	Players      []string       `json:"players,omitempty"`
	Relevant     bool           `json:"relevant"`
	TermFreq     map[string]int `json:"term_freq,omitempty"`
}

// NewDocument returns a document for the play with its identifier set.
func NewDocument(p *Play) *Document {
	id := p.ID
	return &Document{
		ID:           &id,
		Play:         p.Play,
		NextPlay:     p.NextPlay,
		PreviousPlay: p.PreviousPlay,
		Minute:       p.Minute,
		MatchID:      p.MatchID,
		Players:      p.Players,
	}
}

// DocID returns the identifier and whether it is present.
func (d *Document) DocID() (int, bool) {
	if d == nil || d.ID == nil {
		return 0, false
	}
	return *d.ID, true
}

// Text returns the indexed text: Play then NextPlay, joined by a single space.
// Empty fields are skipped.
func (d *Document) Text() string {
	parts := make([]string, 0, 2)
	for _, f := range []string{d.Play, d.NextPlay} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
