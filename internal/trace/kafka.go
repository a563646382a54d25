package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/qexpand/internal/invindex"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event is the JSON payload KafkaSink publishes.
type Event struct {
	Session string               `json:"session,omitempty"`
	Round   int                  `json:"round"`
	Kind    string               `json:"kind"`
	Index   map[string][]Posting `json:"index,omitempty"`
	Weights []models.Weight      `json:"weights,omitempty"`
	Time    time.Time            `json:"time"`
}

// Posting is one document's positions for a term.
type Posting struct {
	DocID     int   `json:"doc_id"`
	Positions []int `json:"positions"`
}

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes snapshots as JSON messages keyed by session id.
type KafkaSink struct {
	writer  MessageWriter
	session string
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaWriter returns a synchronous writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink returns a sink publishing through w. A nil logger is silent.
func NewKafkaSink(w MessageWriter, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{writer: w, timeout: 5 * time.Second, logger: logger}
}

// ForSession returns a copy of the sink that keys messages with id.
func (k *KafkaSink) ForSession(id string) Sink {
	c := *k
	c.session = id
	return &c
}

// Index implements Sink.
func (k *KafkaSink) Index(round int, idx *invindex.Index) {
	postings := make(map[string][]Posting, len(idx.Postings))
	for _, e := range idx.Entries() {
		postings[e.Term] = append(postings[e.Term], Posting{DocID: e.DocID, Positions: e.Positions})
	}
	k.publish(Event{Round: round, Kind: "invertedIndex", Index: postings})
}

// Weights implements Sink.
func (k *KafkaSink) Weights(round int, kind string, weights []models.Weight) {
	k.publish(Event{Round: round, Kind: kind, Weights: weights})
}

func (k *KafkaSink) publish(ev Event) {
	ev.Session = k.session
	ev.Time = time.Now().UTC()
	value, err := json.Marshal(ev)
	if err != nil {
		k.logger.Warn("failed to encode trace event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	msg := kafka.Message{Key: []byte(k.session), Value: value}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Warn("failed to publish trace event",
			zap.String("kind", ev.Kind), zap.Int("round", ev.Round), zap.Error(fmt.Errorf("kafka: %w", err)))
	}
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
