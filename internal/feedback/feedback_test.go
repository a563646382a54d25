package feedback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/backend"
	"github.com/hyperjump/qexpand/internal/invindex"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend returns a fresh copy of the same plays for every query.
type fakeBackend struct {
	plays   []models.Play
	err     error
	queries []string
}

func (f *fakeBackend) Search(_ context.Context, query string) (*models.ResultSet, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	rs := &models.ResultSet{Query: query, NumFound: len(f.plays)}
	for i := range f.plays {
		rs.Docs = append(rs.Docs, models.NewDocument(&f.plays[i]))
	}
	return rs, nil
}

func varPlays() []models.Play {
	return []models.Play{
		{ID: 1, Play: "Goal disallowed by VAR for offside", NextPlay: "Referee confirms offside decision"},
		{ID: 2, Play: "VAR review rules out the goal for offside", NextPlay: "Free kick awarded"},
		{ID: 3, Play: "Corner kick cleared by the defender", NextPlay: "Throw in"},
		{ID: 4, Play: "Penalty saved by the keeper", NextPlay: "Corner kick"},
	}
}

type memStore struct {
	mu       sync.Mutex
	sessions []*models.Session
}

func (m *memStore) SaveSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

type countingObserver struct {
	rounds   int
	sessions int
}

func (o *countingObserver) ObserveRound(models.Mode, *models.Round) { o.rounds++ }
func (o *countingObserver) ObserveSession(*models.Session)         { o.sessions++ }

type recordingSink struct {
	indexes int
	kinds   []string
}

func (r *recordingSink) Index(int, *invindex.Index) { r.indexes++ }
func (r *recordingSink) Weights(_ int, kind string, _ []models.Weight) {
	r.kinds = append(r.kinds, kind)
}

func TestLoop_EndToEnd(t *testing.T) {
	const query = "goal disallowed by var"
	b := &fakeBackend{plays: varPlays()}
	opts := DefaultOptions()
	opts.Iterations = 1
	loop := NewLoop(b, NewJudgments(1, 2), analysis.NewTokenizer(nil), opts)

	sess, err := loop.Run(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, sess.Rounds, 1)

	round := sess.Rounds[0]
	assert.Equal(t, 4, round.Results)
	assert.Equal(t, 2, round.Relevant)
	assert.Equal(t, 0.5, round.Precision)

	require.Len(t, round.Terms, 2)
	assert.Equal(t, []string{"offside", "awarded"}, round.Terms)
	for _, term := range round.Terms {
		assert.NotContains(t, query, term)
		assert.False(t, analysis.IsStopword(term), term)
	}
	scores := make(map[string]float64)
	for _, w := range round.Weights {
		scores[w.Term] = w.Score
	}
	assert.GreaterOrEqual(t, scores[round.Terms[0]], scores[round.Terms[1]])

	assert.Equal(t, query+" offside awarded", sess.FinalQuery)
	assert.Len(t, strings.Fields(sess.FinalQuery), len(strings.Fields(query))+2)
	assert.Equal(t, models.StopIterationLimit, sess.StopReason)
}

func TestLoop_QueryGrowsEveryRound(t *testing.T) {
	b := &fakeBackend{plays: varPlays()}
	loop := NewLoop(b, NewJudgments(1, 2), nil, DefaultOptions())

	sess, err := loop.Run(context.Background(), "goal disallowed by var")
	require.NoError(t, err)
	require.Len(t, sess.Rounds, 3)
	require.Len(t, b.queries, 3)

	prev := len(strings.Fields(b.queries[0]))
	for i := 1; i < len(b.queries); i++ {
		n := len(strings.Fields(b.queries[i]))
		assert.Equal(t, prev+2, n, "round %d", i+1)
		assert.True(t, strings.HasPrefix(b.queries[i], b.queries[i-1]))
		prev = n
	}
	assert.Equal(t, "goal disallowed by var offside awarded confirms decision free referee", sess.FinalQuery)
}

func TestLoop_PseudoRelevance(t *testing.T) {
	b := &fakeBackend{plays: varPlays()}
	opts := DefaultOptions()
	opts.Mode = models.ModePseudo
	opts.Iterations = 1
	sess, err := NewLoop(b, nil, nil, opts).Run(context.Background(), "goal disallowed by var")
	require.NoError(t, err)
	require.Len(t, sess.Rounds, 1)
	assert.Equal(t, 2, sess.Rounds[0].Relevant)
	assert.Equal(t, models.ModePseudo, sess.Mode)
}

func TestLoop_NeighborhoodMode(t *testing.T) {
	b := &fakeBackend{plays: varPlays()}
	sink := &recordingSink{}
	opts := DefaultOptions()
	opts.Mode = models.ModeNeighborhood
	opts.Iterations = 1
	sess, err := NewLoop(b, NewJudgments(1, 2), nil, opts, WithTrace(sink)).Run(context.Background(), "var")
	require.NoError(t, err)
	require.Len(t, sess.Rounds, 1)

	assert.Equal(t, 1, sink.indexes)
	assert.Equal(t, []string{trace.RocchioExtended, trace.TermWeight}, sink.kinds)
	// "review" follows "var" in play 2, which lifts it above the other single-document terms.
	assert.Contains(t, sess.Rounds[0].Terms, "review")
}

func TestLoop_StopsOnEmptyResults(t *testing.T) {
	b := &fakeBackend{}
	sess, err := NewLoop(b, nil, nil, DefaultOptions()).Run(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Empty(t, sess.Rounds)
	assert.Equal(t, models.StopNoResults, sess.StopReason)
	assert.Equal(t, "nothing here", sess.FinalQuery)
	assert.Len(t, b.queries, 1)
}

func TestLoop_StopsOnErrNoResults(t *testing.T) {
	b := &fakeBackend{err: fmt.Errorf("solr: %w", backend.ErrNoResults)}
	sess, err := NewLoop(b, nil, nil, DefaultOptions()).Run(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Equal(t, models.StopNoResults, sess.StopReason)
	assert.Empty(t, sess.Error)
}

func TestLoop_StopsOnBackendError(t *testing.T) {
	b := &fakeBackend{err: errors.New("connection refused")}
	store := &memStore{}
	sess, err := NewLoop(b, nil, nil, DefaultOptions(), WithStore(store)).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, models.StopNoResults, sess.StopReason)
	assert.Contains(t, sess.Error, "connection refused")
	require.Len(t, store.sessions, 1)
	assert.Same(t, sess, store.sessions[0])
}

func TestLoop_States(t *testing.T) {
	b := &fakeBackend{plays: varPlays()}
	opts := DefaultOptions()
	opts.Iterations = 2
	var states []State
	loop := NewLoop(b, nil, nil, opts, WithStateHook(func(_ int, s State) { states = append(states, s) }))
	_, err := loop.Run(context.Background(), "goal")
	require.NoError(t, err)

	round := []State{Fetching, Labeling, Indexing, Scoring, Expanding}
	want := append(append(append([]State{}, round...), round...), Done)
	assert.Equal(t, want, states)
	assert.Equal(t, "expanding", Expanding.String())
}

func TestLoop_ObserverAndStore(t *testing.T) {
	b := &fakeBackend{plays: varPlays()}
	obs := &countingObserver{}
	store := &memStore{}
	sess, err := NewLoop(b, nil, nil, DefaultOptions(), WithObserver(obs), WithStore(store)).
		Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, 3, obs.rounds)
	assert.Equal(t, 1, obs.sessions)
	require.Len(t, store.sessions, 1)
	assert.NotEmpty(t, sess.ID)
}

func TestLoop_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess, err := NewLoop(&fakeBackend{plays: varPlays()}, nil, nil, DefaultOptions()).Run(ctx, "goal")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sess.Rounds)
	assert.NotEmpty(t, sess.Error)
}

func TestLoop_NoRelevantDocuments(t *testing.T) {
	b := &fakeBackend{plays: varPlays()}
	opts := DefaultOptions()
	opts.Iterations = 2
	sess, err := NewLoop(b, NewJudgments(), nil, opts).Run(context.Background(), "goal")
	require.NoError(t, err)
	require.Len(t, sess.Rounds, 2)
	// all weights are zero, so the lexicographically first eligible terms are chosen
	for _, r := range sess.Rounds {
		assert.Len(t, r.Terms, 2)
		for _, w := range r.Weights {
			assert.Equal(t, 0.0, w.Score)
		}
	}
}

func TestTopK(t *testing.T) {
	rs := resultSet(5)
	require.NoError(t, TopK{K: 2}.Label(context.Background(), rs))
	assert.Equal(t, []bool{true, true, false, false, false}, labels(rs))

	require.NoError(t, TopK{K: 10}.Label(context.Background(), rs))
	assert.Equal(t, 5, rs.RelevantCount())
}

func TestJudgments(t *testing.T) {
	rs := resultSet(3)
	rs.Docs = append(rs.Docs, &models.Document{Play: "no id"})
	require.NoError(t, NewJudgments(2, 3).Label(context.Background(), rs))
	assert.Equal(t, []bool{false, true, true, false}, labels(rs))
}

func TestInteractive(t *testing.T) {
	rs := resultSet(4)
	in := strings.NewReader("Y\nmaybe\nn\n")
	var out bytes.Buffer

	require.NoError(t, NewInteractive(in, &out).Label(context.Background(), rs))
	assert.Equal(t, []bool{true, false, false, false}, labels(rs))

	text := out.String()
	assert.Contains(t, text, "Play ID: 1")
	assert.Contains(t, text, "Play: play 1")
	assert.Contains(t, text, "NextPlay: next 1")
	assert.Contains(t, text, "Is this relevant? y/n:")
	assert.Equal(t, 1, strings.Count(text, "Invalid option!"))
	// input ran out before the fourth prompt was answered
	assert.Equal(t, 4, strings.Count(text, "Play ID:"))
}

func TestInteractive_LastLineWithoutNewline(t *testing.T) {
	rs := resultSet(2)
	require.NoError(t, NewInteractive(strings.NewReader("n\ny"), &bytes.Buffer{}).Label(context.Background(), rs))
	assert.Equal(t, []bool{false, true}, labels(rs))
}

func TestPrecision(t *testing.T) {
	rs := resultSet(4)
	rs.Docs[0].Relevant = true
	assert.Equal(t, 0.25, Precision(rs))
	assert.Equal(t, -1.0, Precision(&models.ResultSet{}))
	assert.Equal(t, -1.0, Precision(nil))
}

func resultSet(n int) *models.ResultSet {
	rs := &models.ResultSet{}
	for i := 1; i <= n; i++ {
		p := models.Play{ID: i, Play: "play " + string(rune('0'+i)), NextPlay: "next " + string(rune('0'+i))}
		rs.Docs = append(rs.Docs, models.NewDocument(&p))
	}
	return rs
}

func labels(rs *models.ResultSet) []bool {
	out := make([]bool, len(rs.Docs))
	for i, d := range rs.Docs {
		out[i] = d.Relevant
	}
	return out
}
