// Package trace records intermediate feedback state (inverted index contents and term
// weights) for inspection. Sinks are best effort: write failures are logged, never
// returned, so tracing cannot change a session's outcome.
package trace

import (
	"github.com/hyperjump/qexpand/internal/invindex"
	"github.com/hyperjump/qexpand/internal/models"
)

// Weight list kinds.
const (
	// TermWeight is the ranked candidate list the selector chooses from.
	TermWeight = "termWeight"
	// Rocchio is the baseline Rocchio weight table.
	Rocchio = "rocchioResults"
	// RocchioExtended is the neighborhood-extended weight table.
	RocchioExtended = "rocchioExtendedResults"
)

// Sink receives per-round snapshots.
type Sink interface {
	Index(round int, idx *invindex.Index)
	Weights(round int, kind string, weights []models.Weight)
}

// SessionScoped is implemented by sinks that tag snapshots with a session id.
type SessionScoped interface {
	ForSession(id string) Sink
}

// ForSession scopes s to session id when s supports it.
func ForSession(s Sink, id string) Sink {
	if sc, ok := s.(SessionScoped); ok {
		return sc.ForSession(id)
	}
	return s
}

// Multi fans snapshots out to several sinks.
type Multi []Sink

// Index implements Sink.
func (m Multi) Index(round int, idx *invindex.Index) {
	for _, s := range m {
		s.Index(round, idx)
	}
}

// Weights implements Sink.
func (m Multi) Weights(round int, kind string, weights []models.Weight) {
	for _, s := range m {
		s.Weights(round, kind, weights)
	}
}

// ForSession implements SessionScoped.
func (m Multi) ForSession(id string) Sink {
	out := make(Multi, len(m))
	for i, s := range m {
		out[i] = ForSession(s, id)
	}
	return out
}

// Nop discards everything.
type Nop struct{}

func (Nop) Index(int, *invindex.Index)           {}
func (Nop) Weights(int, string, []models.Weight) {}
