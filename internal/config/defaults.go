package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".qexpand/data/qexpand.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = ".qexpand/data/indices/plays"
	}
	if cfg.Analysis.Stemmer == "" {
		cfg.Analysis.Stemmer = "porter"
	}
	if cfg.Feedback.Mode == "" {
		cfg.Feedback.Mode = "relevance"
	}
	if cfg.Feedback.Iterations == 0 {
		cfg.Feedback.Iterations = 3
	}
	if cfg.Feedback.ExpansionTerms == 0 {
		cfg.Feedback.ExpansionTerms = 2
	}
	if cfg.Feedback.Oracle == "" {
		cfg.Feedback.Oracle = "auto"
	}
	if cfg.Feedback.TopK == 0 {
		cfg.Feedback.TopK = 2
	}
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = "solr"
	}
	if cfg.Backend.Rows == 0 {
		cfg.Backend.Rows = 10
	}
	if cfg.Backend.RateLimit > 0 && cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = 1
	}
	if cfg.Backend.Solr.URL == "" {
		cfg.Backend.Solr.URL = "http://localhost:8983/solr"
	}
	if cfg.Backend.Solr.Core == "" {
		cfg.Backend.Solr.Core = "football"
	}
	if cfg.Backend.Solr.QueryFields == "" {
		cfg.Backend.Solr.QueryFields = "play^1.5 next_play^2.5"
	}
	if cfg.Backend.Solr.Timeout == 0 {
		cfg.Backend.Solr.Timeout = 30 * time.Second
	}
	if cfg.Backend.Cache.Addr == "" {
		cfg.Backend.Cache.Addr = "localhost:6379"
	}
	if cfg.Backend.Cache.TTL == 0 {
		cfg.Backend.Cache.TTL = 10 * time.Minute
	}
	if len(cfg.Trace.Kafka.Brokers) > 0 && cfg.Trace.Kafka.Topic == "" {
		cfg.Trace.Kafka.Topic = "qexpand.trace"
	}
}
