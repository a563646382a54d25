package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/qexpand/internal/rocchio"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
feedback:
  mode: neighborhood
  iterations: 5
  penalty: 0
  neighborhood_bonus: 0.5
backend:
  kind: local
  cache:
    enabled: true
    ttl: 2m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Feedback.Mode != "neighborhood" || cfg.Feedback.Iterations != 5 {
		t.Errorf("unexpected feedback config: %+v", cfg.Feedback)
	}
	if got := cfg.Feedback.PenaltyOrDefault(); got != 0 {
		t.Errorf("explicit zero penalty should be kept, got %v", got)
	}
	if got := cfg.Feedback.NeighborhoodBonusOrDefault(); got != 0.5 {
		t.Errorf("neighborhood bonus = %v", got)
	}
	if got := cfg.Feedback.RewardOrDefault(); got != DefaultReward {
		t.Errorf("reward should default to %v, got %v", DefaultReward, got)
	}
	if cfg.Feedback.ExpansionTerms != 2 {
		t.Errorf("expansion terms should default to 2, got %d", cfg.Feedback.ExpansionTerms)
	}
	if !cfg.Backend.Cache.Enabled || cfg.Backend.Cache.TTL != 2*time.Minute {
		t.Errorf("unexpected cache config: %+v", cfg.Backend.Cache)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/qexpand.db"
trace:
  dir: "./debug"
corpus:
  paths: ["./corpus/plays.csv"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "qexpand.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "debug"); cfg.Trace.Dir != want {
		t.Errorf("trace dir = %s, want %s", cfg.Trace.Dir, want)
	}
	if len(cfg.Corpus.Paths) != 1 || cfg.Corpus.Paths[0] != filepath.Join(dir, "corpus", "plays.csv") {
		t.Errorf("corpus paths = %v", cfg.Corpus.Paths)
	}
	if !cfg.Corpus.WatchOrDefault() {
		t.Error("watch should default to true when corpus paths are set")
	}
}

func TestLoad_invalid(t *testing.T) {
	path := writeConfig(t, `
feedback:
  mode: magic
  reward: -1
backend:
  kind: elastic
  rate_limit: -2
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"feedback.mode", "feedback.reward", "backend.kind", "backend.rate_limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Backend.Kind != "solr" || cfg.Backend.Rows != 10 {
		t.Errorf("default backend: %+v", cfg.Backend)
	}
	if cfg.Backend.Solr.Core != "football" || cfg.Backend.Solr.QueryFields != "play^1.5 next_play^2.5" {
		t.Errorf("default solr: %+v", cfg.Backend.Solr)
	}
	if cfg.Feedback.Oracle != "auto" || cfg.Feedback.TopK != 2 || cfg.Feedback.Iterations != 3 {
		t.Errorf("default feedback: %+v", cfg.Feedback)
	}
	if cfg.Analysis.Stemmer != "porter" || cfg.Analysis.StemmingOrDefault() || !cfg.Analysis.StopwordEliminationOrDefault() {
		t.Errorf("default analysis: %+v", cfg.Analysis)
	}
	if cfg.Backend.Cache.Enabled {
		t.Error("cache should be off by default")
	}
	if cfg.Corpus.WatchOrDefault() {
		t.Error("watch should be off without corpus paths")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_rateLimitBurst(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{RateLimit: 5}}
	ApplyDefaults(cfg)
	if cfg.Backend.Burst != 1 {
		t.Errorf("burst: got %d, want 1", cfg.Backend.Burst)
	}
	unlimited := &Config{}
	ApplyDefaults(unlimited)
	if unlimited.Backend.Burst != 0 {
		t.Errorf("burst without rate limit: got %d", unlimited.Backend.Burst)
	}
}

func TestApplyDefaults_kafkaTopic(t *testing.T) {
	cfg := &Config{Trace: TraceConfig{Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}}}}
	ApplyDefaults(cfg)
	if cfg.Trace.Kafka.Topic != "qexpand.trace" {
		t.Errorf("kafka topic = %q", cfg.Trace.Kafka.Topic)
	}
}

func TestFeedbackConfig_DefaultsMatchScorer(t *testing.T) {
	var f FeedbackConfig
	want := rocchio.DefaultParams()
	if f.RewardOrDefault() != want.Reward || f.PenaltyOrDefault() != want.Penalty ||
		f.NeighborhoodBonusOrDefault() != want.NeighborhoodBonus {
		t.Errorf("feedback defaults differ from scorer defaults %+v", want)
	}
}

func TestAnalysisConfig_OrDefault(t *testing.T) {
	off, on := false, true
	a := &AnalysisConfig{Stemming: &off, StopwordElimination: &off}
	if a.StemmingOrDefault() || a.StopwordEliminationOrDefault() {
		t.Error("explicit false should be kept")
	}
	unset := &AnalysisConfig{}
	if unset.StemmingOrDefault() {
		t.Error("stemming should be off unless enabled")
	}
	if !(&AnalysisConfig{Stemming: &on}).StemmingOrDefault() {
		t.Error("explicit true should be kept")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if !filepath.IsAbs(cfg.Storage.DatabasePath) {
		t.Errorf("database path should be absolute, got %s", cfg.Storage.DatabasePath)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Storage.DatabasePath != "/tmp/db" {
		t.Errorf("loaded: %+v", loaded)
	}
}
