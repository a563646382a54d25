// Package feedback runs the iterative query expansion loop: fetch a result set, have
// an oracle label it, index it, weight its terms with Rocchio, and append the best
// new terms to the query for the next round.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/backend"
	"github.com/hyperjump/qexpand/internal/invindex"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/internal/rocchio"
	"github.com/hyperjump/qexpand/internal/selector"
	"github.com/hyperjump/qexpand/internal/trace"
	"go.uber.org/zap"
)

const (
	DefaultIterations     = 3
	DefaultExpansionTerms = 2

	// maxRoundWeights bounds the candidate list kept on each round record.
	maxRoundWeights = 10
)

// State is a step of one feedback round.
type State int

const (
	Fetching State = iota
	Labeling
	Indexing
	Scoring
	Expanding
	Done
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Labeling:
		return "labeling"
	case Indexing:
		return "indexing"
	case Scoring:
		return "scoring"
	case Expanding:
		return "expanding"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Store persists finished sessions.
type Store interface {
	SaveSession(ctx context.Context, s *models.Session) error
}

// Observer is notified of completed rounds and sessions.
type Observer interface {
	ObserveRound(mode models.Mode, r *models.Round)
	ObserveSession(s *models.Session)
}

// Options are the per-session loop settings.
type Options struct {
	Mode                models.Mode
	Iterations          int
	ExpansionTerms      int
	StopwordElimination bool
	Params              rocchio.Params
}

// DefaultOptions returns the settings of a three-round relevance feedback session.
func DefaultOptions() Options {
	return Options{
		Mode:                models.ModeRelevance,
		Iterations:          DefaultIterations,
		ExpansionTerms:      DefaultExpansionTerms,
		StopwordElimination: true,
		Params:              rocchio.DefaultParams(),
	}
}

// Loop drives feedback sessions. A Loop holds no per-session state and may run
// sessions concurrently as long as its oracle allows it.
type Loop struct {
	backend  backend.Backend
	oracle   Oracle
	builder  *invindex.Builder
	opts     Options
	logger   *zap.Logger
	store    Store
	sink     trace.Sink
	observer Observer
	onState  func(round int, s State)
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) LoopOption {
	return func(lp *Loop) { lp.logger = l }
}

// WithStore saves every finished session to s.
func WithStore(s Store) LoopOption {
	return func(lp *Loop) { lp.store = s }
}

// WithTrace sends index and weight snapshots to sink.
func WithTrace(sink trace.Sink) LoopOption {
	return func(lp *Loop) { lp.sink = sink }
}

// WithObserver reports rounds and sessions to o.
func WithObserver(o Observer) LoopOption {
	return func(lp *Loop) { lp.observer = o }
}

// WithStateHook calls fn on every state transition.
func WithStateHook(fn func(round int, s State)) LoopOption {
	return func(lp *Loop) { lp.onState = fn }
}

// NewLoop creates a loop. A nil oracle labels with TopK{DefaultTopK}; a nil tokenizer
// does not stem.
func NewLoop(b backend.Backend, oracle Oracle, tok *analysis.Tokenizer, opts Options, lopts ...LoopOption) *Loop {
	if oracle == nil {
		oracle = TopK{K: DefaultTopK}
	}
	if opts.Mode == "" {
		opts.Mode = models.ModeRelevance
	}
	if opts.ExpansionTerms <= 0 {
		opts.ExpansionTerms = DefaultExpansionTerms
	}
	lp := &Loop{
		backend: b,
		oracle:  oracle,
		opts:    opts,
		logger:  zap.NewNop(),
	}
	for _, o := range lopts {
		o(lp)
	}
	lp.builder = invindex.NewBuilder(tok, invindex.WithLogger(lp.logger))
	return lp
}

// Options returns the loop settings.
func (lp *Loop) Options() Options {
	return lp.opts
}

// Run expands query for up to Options.Iterations rounds. Backend failures and empty
// result sets end the session normally with StopNoResults; an error is returned only
// when ctx is done or the oracle fails, together with the partial session.
func (lp *Loop) Run(ctx context.Context, query string) (*models.Session, error) {
	sess := &models.Session{
		ID:           uuid.NewString(),
		Mode:         lp.opts.Mode,
		InitialQuery: query,
		FinalQuery:   query,
		StopReason:   models.StopIterationLimit,
		CreatedAt:    time.Now(),
	}
	log := lp.logger.With(zap.String("session", sess.ID), zap.String("mode", string(sess.Mode)))
	log.Info("starting feedback session", zap.String("query", query), zap.Int("iterations", lp.opts.Iterations))

	sink := lp.sink
	if sink != nil {
		sink = trace.ForSession(sink, sess.ID)
	}
	err := lp.run(ctx, sess, sink, log)
	lp.state(0, Done)
	if err != nil {
		sess.Error = err.Error()
	}
	lp.finish(ctx, sess, log)
	return sess, err
}

func (lp *Loop) run(ctx context.Context, sess *models.Session, sink trace.Sink, log *zap.Logger) error {
	query := sess.InitialQuery
	for n := 1; n <= lp.opts.Iterations; n++ {
		lp.state(n, Fetching)
		rs, err := lp.backend.Search(ctx, query)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, backend.ErrNoResults) {
			err = nil
		}
		if err != nil {
			log.Warn("error during requesting results, stopping", zap.Int("round", n), zap.Error(err))
			sess.StopReason = models.StopNoResults
			sess.Error = err.Error()
			return nil
		}
		if rs.Len() == 0 {
			log.Info("no results, stopping", zap.Int("round", n), zap.String("query", query))
			sess.StopReason = models.StopNoResults
			return nil
		}

		round, next, err := lp.round(ctx, n, query, rs, sink, log)
		if err != nil {
			return err
		}
		sess.Rounds = append(sess.Rounds, round)
		if lp.observer != nil {
			lp.observer.ObserveRound(sess.Mode, round)
		}
		query = next
		sess.FinalQuery = query
	}
	return nil
}

// round labels, indexes and scores rs and returns the round record and expanded query.
func (lp *Loop) round(ctx context.Context, n int, query string, rs *models.ResultSet, sink trace.Sink, log *zap.Logger) (*models.Round, string, error) {
	lp.state(n, Labeling)
	if err := lp.oracle.Label(ctx, rs); err != nil {
		return nil, query, fmt.Errorf("failed to label round %d: %w", n, err)
	}
	precision := Precision(rs)

	lp.state(n, Indexing)
	idx := lp.builder.Build(rs)
	if sink != nil {
		sink.Index(n, idx)
	}

	lp.state(n, Scoring)
	var weights rocchio.TermWeights
	if lp.opts.Mode.Extended() {
		nb := rocchio.Neighborhood(idx, query, lp.builder.Tokenizer())
		weights = lp.opts.Params.ScoreExtended(idx, nb)
	} else {
		weights = lp.opts.Params.Score(idx)
	}
	ranked := selector.Ranked(weights)
	if sink != nil {
		kind := trace.Rocchio
		if lp.opts.Mode.Extended() {
			kind = trace.RocchioExtended
		}
		sink.Weights(n, kind, ranked)
	}

	lp.state(n, Expanding)
	terms := selector.SelectTop(query, weights, lp.opts.ExpansionTerms, selector.Options{
		StopwordElimination: lp.opts.StopwordElimination,
	})
	if sink != nil {
		sink.Weights(n, trace.TermWeight, ranked)
	}
	if len(terms) < lp.opts.ExpansionTerms {
		log.Debug("fewer expansion terms than requested",
			zap.Int("round", n), zap.Int("selected", len(terms)), zap.Int("requested", lp.opts.ExpansionTerms))
	}
	next := selector.Expand(query, terms)

	log.Info("round complete",
		zap.Int("round", n),
		zap.Int("results", rs.Len()),
		zap.Int("relevant", rs.RelevantCount()),
		zap.Float64("precision", precision),
		zap.Strings("terms", terms),
	)

	if len(ranked) > maxRoundWeights {
		ranked = ranked[:maxRoundWeights]
	}
	return &models.Round{
		Number:    n,
		Query:     query,
		Results:   rs.Len(),
		Relevant:  rs.RelevantCount(),
		Precision: precision,
		Terms:     terms,
		Weights:   ranked,
		CreatedAt: time.Now(),
	}, next, nil
}

func (lp *Loop) finish(ctx context.Context, sess *models.Session, log *zap.Logger) {
	log.Info("feedback session finished",
		zap.String("final_query", sess.FinalQuery),
		zap.String("stop_reason", string(sess.StopReason)),
		zap.Int("rounds", len(sess.Rounds)),
	)
	if lp.observer != nil {
		lp.observer.ObserveSession(sess)
	}
	if lp.store == nil {
		return
	}
	// the session is saved even when ctx was cancelled mid-run
	if err := lp.store.SaveSession(context.WithoutCancel(ctx), sess); err != nil {
		log.Warn("failed to save session", zap.Error(err))
	}
}

func (lp *Loop) state(round int, s State) {
	if lp.onState != nil {
		lp.onState(round, s)
	}
}
