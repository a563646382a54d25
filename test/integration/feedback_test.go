// Package integration provides end-to-end tests (requires real storage and indices).
package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/backend"
	"github.com/hyperjump/qexpand/internal/feedback"
	"github.com/hyperjump/qexpand/internal/indexer"
	"github.com/hyperjump/qexpand/internal/keyword"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/internal/storage"
	"github.com/hyperjump/qexpand/internal/trace"
)

const playsJSONL = `{"play_id": 1, "match_id": 10, "minute": "12'", "play": "Goal disallowed by VAR for offside", "next_play": "Referee confirms the offside decision"}
{"play_id": 2, "match_id": 10, "minute": "30'", "play": "VAR review rules out the goal for offside", "next_play": "Free kick awarded to the defence"}
{"play_id": 3, "match_id": 11, "minute": "41'", "play": "Corner kick cleared by the defender", "next_play": "Throw in"}
{"play_id": 4, "match_id": 11, "minute": "77'", "play": "Penalty saved by the keeper after VAR check", "next_play": "Corner kick"}
`

func TestIntegration_FeedbackSession(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	kwIndex, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer kwIndex.Close()

	corpusPath := filepath.Join(dir, "plays.jsonl")
	if err := os.WriteFile(corpusPath, []byte(playsJSONL), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	idx := indexer.NewIndexer(store, kwIndex, nil)
	n, err := idx.IndexPath(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("indexed plays: got %d, want 4", n)
	}

	traceDir := filepath.Join(dir, "trace")
	opts := feedback.DefaultOptions()
	opts.Mode = models.ModeNeighborhood
	opts.Iterations = 2
	loop := feedback.NewLoop(
		backend.NewLocal(kwIndex, store, backend.DefaultRows, nil, nil),
		feedback.NewJudgments(1, 2),
		analysis.NewTokenizer(analysis.Porter{}),
		opts,
		feedback.WithStore(store),
		feedback.WithTrace(trace.NewFileSink(traceDir, nil)),
	)
	sess, err := loop.Run(ctx, "var goal")
	if err != nil {
		t.Fatal(err)
	}
	if sess.StopReason != models.StopIterationLimit || len(sess.Rounds) != 2 {
		t.Fatalf("unexpected session: stop=%s rounds=%d err=%s", sess.StopReason, len(sess.Rounds), sess.Error)
	}
	if sess.Rounds[0].Relevant != 2 {
		t.Errorf("round 1 relevant: got %d", sess.Rounds[0].Relevant)
	}
	if !strings.HasPrefix(sess.FinalQuery, "var goal ") || len(strings.Fields(sess.FinalQuery)) != 6 {
		t.Errorf("final query %q should be the initial query plus two terms per round", sess.FinalQuery)
	}

	saved, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.FinalQuery != sess.FinalQuery || len(saved.Rounds) != 2 {
		t.Errorf("stored session differs: %+v", saved)
	}
	for _, name := range []string{trace.IndexFile, trace.TermWeight + ".txt", trace.RocchioExtended + ".txt"} {
		if _, err := os.Stat(filepath.Join(traceDir, sess.ID, name)); err != nil {
			t.Errorf("trace file %s: %v", name, err)
		}
	}
}

func TestIntegration_NoResultsStopsSession(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	kwIndex, err := keyword.NewMemIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer kwIndex.Close()

	loop := feedback.NewLoop(
		backend.NewLocal(kwIndex, store, 0, nil, nil),
		feedback.TopK{K: 2},
		analysis.NewTokenizer(nil),
		feedback.DefaultOptions(),
	)
	sess, err := loop.Run(context.Background(), "nothing indexed")
	if err != nil {
		t.Fatal(err)
	}
	if sess.StopReason != models.StopNoResults || len(sess.Rounds) != 0 {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.Error != "" {
		t.Errorf("empty corpus should not record an error: %q", sess.Error)
	}
}
