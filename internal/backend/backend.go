// Package backend provides the search backends a feedback session queries: a Solr
// edismax client, a local bleve-backed backend over the plays corpus, and a Redis
// result cache that wraps either one.
package backend

import (
	"context"
	"errors"

	"github.com/hyperjump/qexpand/internal/models"
)

// DefaultRows is the number of documents requested per query.
const DefaultRows = 10

// ErrNoResults is returned when a query matches no documents.
var ErrNoResults = errors.New("no results")

// Backend executes a query and returns its ranked result set.
type Backend interface {
	Search(ctx context.Context, query string) (*models.ResultSet, error)
}

// Func adapts an ordinary function to Backend.
type Func func(ctx context.Context, query string) (*models.ResultSet, error)

// Search calls f(ctx, query).
func (f Func) Search(ctx context.Context, query string) (*models.ResultSet, error) {
	return f(ctx, query)
}
