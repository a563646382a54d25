package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/qexpand/internal/keyword"
	"github.com/hyperjump/qexpand/internal/models"
)

// PlayLookup loads plays by id.
type PlayLookup interface {
	GetPlays(ctx context.Context, ids []int) (map[int]*models.Play, error)
}

// Local searches the local keyword index and loads the matching plays from storage.
type Local struct {
	index  keyword.PlayIndex
	plays  PlayLookup
	rows   int
	search *keyword.SearchOptions
	logger *zap.Logger
}

// NewLocal returns a local backend. rows <= 0 means DefaultRows; nil opts means
// the default field boosts.
func NewLocal(index keyword.PlayIndex, plays PlayLookup, rows int, opts *keyword.SearchOptions, logger *zap.Logger) *Local {
	if rows <= 0 {
		rows = DefaultRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{index: index, plays: plays, rows: rows, search: opts, logger: logger}
}

// Search implements Backend. Hits are returned in keyword ranking order; hits whose play
// is missing from storage are dropped.
func (l *Local) Search(ctx context.Context, query string) (*models.ResultSet, error) {
	res, err := l.index.Search(ctx, query, l.rows, l.search)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	ids := make([]int, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	plays, err := l.plays.GetPlays(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load plays: %w", err)
	}

	rs := &models.ResultSet{Query: query, NumFound: int(res.Total), Docs: make([]*models.Document, 0, len(ids))}
	for _, id := range ids {
		p, ok := plays[id]
		if !ok {
			l.logger.Debug("indexed play missing from storage", zap.Int("play_id", id))
			continue
		}
		rs.Docs = append(rs.Docs, models.NewDocument(p))
	}
	if rs.Len() == 0 {
		return rs, ErrNoResults
	}
	return rs, nil
}
