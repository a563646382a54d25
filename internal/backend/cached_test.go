package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/qexpand/internal/models"
)

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttl    time.Duration
	getErr error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[key] = value.([]byte)
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingBackend struct {
	calls int
	err   error
}

func (c *countingBackend) Search(_ context.Context, query string) (*models.ResultSet, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &models.ResultSet{Query: query, NumFound: 1, Docs: []*models.Document{
		{ID: models.IntPtr(1), Play: "Goal", NextPlay: "Kick off"},
	}}, nil
}

func TestCached_HitAndMiss(t *testing.T) {
	next := &countingBackend{}
	rc := &fakeRedis{}
	c := NewCached(next, rc, "solr", time.Minute, nil)
	ctx := context.Background()

	first, err := c.Search(ctx, "goal")
	require.NoError(t, err)
	first.Docs[0].Relevant = true
	first.Docs[0].TermFreq = map[string]int{"goal": 1}

	second, err := c.Search(ctx, "  GOAL ")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls, "second search should be served from cache")
	assert.NotSame(t, first, second)
	assert.False(t, second.Docs[0].Relevant, "labels must not leak between callers")
	assert.Nil(t, second.Docs[0].TermFreq)
	assert.Equal(t, "Kick off", second.Docs[0].NextPlay)
	assert.Equal(t, time.Minute, rc.ttl)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	next := &countingBackend{err: ErrNoResults}
	c := NewCached(next, &fakeRedis{}, "solr", 0, nil)
	_, err := c.Search(context.Background(), "zzz")
	assert.True(t, errors.Is(err, ErrNoResults))
	_, err = c.Search(context.Background(), "zzz")
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCached_RedisDownFallsBack(t *testing.T) {
	next := &countingBackend{}
	c := NewCached(next, &fakeRedis{getErr: errors.New("connection refused")}, "solr", 0, nil)
	rs, err := c.Search(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

func TestCached_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	next := Func(func(ctx context.Context, query string) (*models.ResultSet, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &models.ResultSet{Query: query, Docs: []*models.Document{{ID: models.IntPtr(7), Play: "Penalty saved"}}}, nil
	})
	c := NewCached(next, &fakeRedis{}, "solr", time.Minute, nil)

	type result struct {
		rs  *models.ResultSet
		err error
	}
	first := make(chan result, 1)
	cancelCtx, cancel := context.WithCancel(context.Background())
	go func() {
		rs, err := c.Search(cancelCtx, "penalty")
		first <- result{rs, err}
	}()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("backend was not called")
	}
	cancel()
	select {
	case r := <-first:
		assert.ErrorIs(t, r.err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	second := make(chan result, 1)
	go func() {
		rs, err := c.Search(context.Background(), "penalty")
		second <- result{rs, err}
	}()
	close(release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		require.Len(t, r.rs.Docs, 1)
		assert.Equal(t, 7, *r.rs.Docs[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCached_Key(t *testing.T) {
	a := NewCached(nil, nil, "solr", 0, nil)
	b := NewCached(nil, nil, "local", 0, nil)
	assert.Equal(t, a.Key("Goal  VAR"), a.Key("goal var"))
	assert.NotEqual(t, a.Key("goal var"), a.Key("var goal"))
	assert.NotEqual(t, a.Key("goal"), b.Key("goal"))
	assert.Contains(t, a.Key("goal"), "qexpand:results:")
}
