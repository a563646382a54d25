package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/qexpand/internal/models"
)

func TestRateLimited_PassesThrough(t *testing.T) {
	calls := 0
	next := Func(func(_ context.Context, q string) (*models.ResultSet, error) {
		calls++
		return &models.ResultSet{Query: q}, nil
	})
	rl := NewRateLimited(next, 1000, 0)
	for i := 0; i < 3; i++ {
		rs, err := rl.Search(context.Background(), "goal")
		require.NoError(t, err)
		assert.Equal(t, "goal", rs.Query)
	}
	assert.Equal(t, 3, calls)
}

func TestRateLimited_WaitsForToken(t *testing.T) {
	next := Func(func(_ context.Context, q string) (*models.ResultSet, error) {
		return &models.ResultSet{Query: q}, nil
	})
	rl := NewRateLimited(next, 0.01, 1)
	_, err := rl.Search(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.Search(ctx, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
