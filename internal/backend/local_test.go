package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/qexpand/internal/keyword"
	"github.com/hyperjump/qexpand/internal/models"
)

type memPlays map[int]*models.Play

func (m memPlays) GetPlays(_ context.Context, ids []int) (map[int]*models.Play, error) {
	out := make(map[int]*models.Play, len(ids))
	for _, id := range ids {
		if p, ok := m[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newLocal(t *testing.T, plays memPlays) *Local {
	t.Helper()
	idx, err := keyword.NewMemIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	for _, p := range plays {
		require.NoError(t, idx.Index(context.Background(), p))
	}
	return NewLocal(idx, plays, 0, nil, nil)
}

func TestLocal_Search(t *testing.T) {
	plays := memPlays{
		1: {ID: 1, Play: "Goal disallowed by VAR", NextPlay: "Free kick"},
		2: {ID: 2, Play: "Corner kick", NextPlay: "Header wide"},
		3: {ID: 3, Play: "Yellow card", NextPlay: "Goal scored from the free kick"},
	}
	l := newLocal(t, plays)

	rs, err := l.Search(context.Background(), "goal")
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, 2, rs.NumFound)
	ids := map[int]bool{}
	for _, d := range rs.Docs {
		id, ok := d.DocID()
		require.True(t, ok)
		ids[id] = true
	}
	assert.Equal(t, map[int]bool{1: true, 3: true}, ids)
}

func TestLocal_NoResults(t *testing.T) {
	l := newLocal(t, memPlays{1: {ID: 1, Play: "Corner kick"}})
	_, err := l.Search(context.Background(), "penalty")
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestLocal_DropsPlaysMissingFromStorage(t *testing.T) {
	plays := memPlays{1: {ID: 1, Play: "Penalty saved"}, 2: {ID: 2, Play: "Penalty scored"}}
	l := newLocal(t, plays)
	delete(plays, 2)

	rs, err := l.Search(context.Background(), "penalty")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	id, _ := rs.Docs[0].DocID()
	assert.Equal(t, 1, id)
}
