package trace

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/qexpand/internal/invindex"
	"github.com/hyperjump/qexpand/internal/models"
)

func sampleIndex() *invindex.Index {
	rs := &models.ResultSet{Docs: []*models.Document{
		{ID: models.IntPtr(1), Play: "Goal by Kane"},
		{ID: models.IntPtr(2), Play: "Kane scores"},
	}}
	return invindex.NewBuilder(nil).Build(rs)
}

var sampleWeights = []models.Weight{{Term: "kane", Score: 0.5}, {Term: "goal", Score: -0.125}}

func TestFileSink_Index(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	NewFileSink(dir, nil).Index(2, sampleIndex())

	got, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	want := "# round 2\n" +
		"===========\nby=1:[1]\n" +
		"===========\ngoal=1:[0]\n" +
		"===========\nkane=1:[2] 2:[0]\n" +
		"===========\nscores=2:[1]\n"
	assert.Equal(t, want, string(got))
}

func TestFileSink_WeightsReplacePreviousRound(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, nil)
	sink.Weights(1, Rocchio, []models.Weight{{Term: "old", Score: 1}})
	sink.Weights(2, Rocchio, sampleWeights)

	got, err := os.ReadFile(filepath.Join(dir, "rocchioResults.txt"))
	require.NoError(t, err)
	assert.Equal(t, "# round 2\n===========\nkane\n0.5\n===========\ngoal\n-0.125\n", string(got))
}

func TestFileSink_ForSessionSeparatesSessions(t *testing.T) {
	dir := t.TempDir()
	base := NewFileSink(dir, nil)
	a := ForSession(base, "s-a")
	b := ForSession(base, "s-b")
	a.Weights(1, Rocchio, []models.Weight{{Term: "offside", Score: 1}})
	b.Weights(1, Rocchio, sampleWeights)

	gotA, err := os.ReadFile(filepath.Join(dir, "s-a", "rocchioResults.txt"))
	require.NoError(t, err)
	assert.Equal(t, "# round 1\n===========\noffside\n1\n", string(gotA))
	gotB, err := os.ReadFile(filepath.Join(dir, "s-b", "rocchioResults.txt"))
	require.NoError(t, err)
	assert.Equal(t, "# round 1\n===========\nkane\n0.5\n===========\ngoal\n-0.125\n", string(gotB))
	assert.NoFileExists(t, filepath.Join(dir, "rocchioResults.txt"))
}

func TestFileSink_UnwritableDirLogs(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	core, logs := observer.New(zap.WarnLevel)

	NewFileSink(filepath.Join(blocker, "sub"), zap.New(core)).Weights(1, TermWeight, sampleWeights)
	assert.Equal(t, 1, logs.Len())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := ForSession(NewKafkaSink(w, nil), "s-1")
	sink.Index(1, sampleIndex())
	sink.Weights(1, TermWeight, sampleWeights)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "s-1", string(w.msgs[0].Key))

	var ev Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "invertedIndex", ev.Kind)
	assert.Equal(t, "s-1", ev.Session)
	assert.Equal(t, []Posting{{DocID: 1, Positions: []int{2}}, {DocID: 2, Positions: []int{0}}}, ev.Index["kane"])

	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &ev))
	assert.Equal(t, TermWeight, ev.Kind)
	assert.Equal(t, sampleWeights, ev.Weights)
}

func TestKafkaSink_FailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := NewKafkaSink(&fakeWriter{err: errors.New("broker down")}, zap.New(core))
	sink.Weights(1, Rocchio, sampleWeights)
	assert.Equal(t, 1, logs.FilterMessage("failed to publish trace event").Len())
}

type recordingSink struct {
	rounds  []int
}

func (r *recordingSink) Index(round int, _ *invindex.Index)              { r.rounds = append(r.rounds, round) }
func (r *recordingSink) Weights(round int, _ string, _ []models.Weight) { r.rounds = append(r.rounds, round) }

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	w := &fakeWriter{}
	m := ForSession(Multi{a, b, NewKafkaSink(w, nil), Nop{}}, "s-2")
	m.Index(1, sampleIndex())
	m.Weights(2, TermWeight, sampleWeights)

	assert.Equal(t, []int{1, 2}, a.rounds)
	assert.Equal(t, []int{1, 2}, b.rounds)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "s-2", string(w.msgs[1].Key))
}
