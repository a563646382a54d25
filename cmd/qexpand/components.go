package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/backend"
	"github.com/hyperjump/qexpand/internal/config"
	"github.com/hyperjump/qexpand/internal/feedback"
	"github.com/hyperjump/qexpand/internal/indexer"
	"github.com/hyperjump/qexpand/internal/keyword"
	"github.com/hyperjump/qexpand/internal/metrics"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/internal/rocchio"
	"github.com/hyperjump/qexpand/internal/storage"
	"github.com/hyperjump/qexpand/internal/trace"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Components holds the wired services shared by the subcommands.
type Components struct {
	Storage      *storage.SQLiteStorage
	KeywordIndex *keyword.BleveIndex // nil unless the local corpus was opened
	Indexer      *indexer.Indexer    // nil unless the local corpus was opened
	Tokenizer    *analysis.Tokenizer
	Backend      backend.Backend
	Trace        trace.Sink // nil when tracing is off
	Metrics      *metrics.Metrics

	kafkaWriter *kafka.Writer
	logger      *zap.Logger
}

// Close releases storage, indices and trace writers.
func (c *Components) Close() {
	if c.kafkaWriter != nil {
		if err := c.kafkaWriter.Close(); err != nil {
			c.logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// LoopOptions returns the loop options every session gets: logging, session storage,
// tracing and metrics.
func (c *Components) LoopOptions() []feedback.LoopOption {
	opts := []feedback.LoopOption{
		feedback.WithLogger(c.logger),
		feedback.WithStore(c.Storage),
		feedback.WithObserver(c.Metrics),
	}
	if c.Trace != nil {
		opts = append(opts, feedback.WithTrace(c.Trace))
	}
	return opts
}

// initializeComponents wires storage, the tokenizer, the backend chain and trace sinks.
// The bleve corpus index is opened only when withCorpus is set or the backend is local,
// since bleve holds an exclusive lock on it.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withCorpus bool) (*Components, error) {
	c := &Components{Metrics: metrics.New(), logger: logger}

	tok, err := newTokenizer(cfg)
	if err != nil {
		return nil, err
	}
	c.Tokenizer = tok

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if withCorpus || cfg.Backend.Kind == "local" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.BleveIndexPath), 0755); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
		c.Indexer = indexer.NewIndexer(c.Storage, c.KeywordIndex, nil,
			indexer.WithLogger(logger), indexer.WithObserver(c.Metrics))
	}

	c.Backend = c.newBackend(cfg)
	c.Trace = c.newTrace(cfg)
	return c, nil
}

func newTokenizer(cfg *config.Config) (*analysis.Tokenizer, error) {
	if !cfg.Analysis.StemmingOrDefault() {
		return analysis.NewTokenizer(nil), nil
	}
	stemmer, err := analysis.NewStemmer(cfg.Analysis.Stemmer)
	if err != nil {
		return nil, err
	}
	return analysis.NewTokenizer(stemmer), nil
}

// newBackend builds Solr or Local, instrumented and optionally rate limited, behind the
// Redis cache when it is enabled. Cache hits skip the limiter.
func (c *Components) newBackend(cfg *config.Config) backend.Backend {
	var b backend.Backend
	name := cfg.Backend.Kind
	switch name {
	case "local":
		b = backend.NewLocal(c.KeywordIndex, c.Storage, cfg.Backend.Rows, nil, c.logger)
	default:
		sc := cfg.Backend.Solr
		b = backend.NewSolr(sc.URL, sc.Core,
			backend.WithHTTPClient(&http.Client{Timeout: sc.Timeout}),
			backend.WithRows(cfg.Backend.Rows),
			backend.WithQueryFields(sc.QueryFields),
			backend.WithSolrLogger(c.logger),
		)
	}
	b = c.Metrics.Instrument(name, b)
	if cfg.Backend.RateLimit > 0 {
		b = backend.NewRateLimited(b, cfg.Backend.RateLimit, cfg.Backend.Burst)
	}

	if cc := cfg.Backend.Cache; cc.Enabled {
		namespace := name
		if name == "solr" {
			namespace = cfg.Backend.Solr.URL + "/" + cfg.Backend.Solr.Core
		}
		cached := backend.NewCached(b, backend.NewRedisClient(cc.Addr, cc.Password, cc.DB), namespace, cc.TTL, c.logger)
		c.Metrics.RegisterCache(cached.Stats)
		b = cached
	}
	return b
}

func (c *Components) newTrace(cfg *config.Config) trace.Sink {
	var sinks trace.Multi
	if cfg.Trace.Dir != "" {
		sinks = append(sinks, trace.NewFileSink(cfg.Trace.Dir, c.logger))
	}
	if k := cfg.Trace.Kafka; len(k.Brokers) > 0 {
		c.kafkaWriter = trace.NewKafkaWriter(k.Brokers, k.Topic)
		sinks = append(sinks, trace.NewKafkaSink(c.kafkaWriter, c.logger))
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	}
	return sinks
}

// feedbackOptions converts the feedback settings of cfg into loop options.
func feedbackOptions(cfg *config.Config) (feedback.Options, error) {
	mode, err := models.ParseMode(cfg.Feedback.Mode)
	if err != nil {
		return feedback.Options{}, err
	}
	return feedback.Options{
		Mode:                mode,
		Iterations:          cfg.Feedback.Iterations,
		ExpansionTerms:      cfg.Feedback.ExpansionTerms,
		StopwordElimination: cfg.Analysis.StopwordEliminationOrDefault(),
		Params: rocchio.Params{
			Reward:            cfg.Feedback.RewardOrDefault(),
			Penalty:           cfg.Feedback.PenaltyOrDefault(),
			NeighborhoodBonus: cfg.Feedback.NeighborhoodBonusOrDefault(),
		},
	}, nil
}
