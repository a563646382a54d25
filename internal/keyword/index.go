// Package keyword provides the local full-text index over the plays corpus.
package keyword

import (
	"context"

	"github.com/hyperjump/qexpand/internal/models"
)

// Default field boosts, matching the edismax qf of the Solr backend.
const (
	DefaultPlayBoost     = 1.5
	DefaultNextPlayBoost = 2.5
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// PlayBoost weights matches in the play field.
	PlayBoost float64
	// NextPlayBoost weights matches in the next_play field.
	NextPlayBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 2.
	Fuzziness int
}

// PlayIndex defines keyword search operations over plays.
type PlayIndex interface {
	Index(ctx context.Context, play *models.Play) error
	IndexBatch(ctx context.Context, plays []*models.Play) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) (*SearchResult, error)
	Delete(ctx context.Context, id int) error
	Close() error
	// DocCount returns the total number of plays in the index.
	DocCount() (uint64, error)
}

// SearchResult is a ranked page of hits plus the total number of matches.
type SearchResult struct {
	Total uint64
	Hits  []*Hit
}

// Hit is a single keyword search hit.
type Hit struct {
	ID    int
	Score float64
}
