// Package config provides configuration loading and structs for qexpand.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/qexpand/internal/rocchio"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Backend  BackendConfig  `yaml:"backend"`
	Trace    TraceConfig    `yaml:"trace"`
	Corpus   CorpusConfig   `yaml:"corpus"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and the keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// AnalysisConfig controls tokenization.
type AnalysisConfig struct {
	Stemming *bool `yaml:"stemming"`
	// Stemmer is "porter" or "snowball".
	Stemmer             string `yaml:"stemmer"`
	StopwordElimination *bool  `yaml:"stopword_elimination"`
}

// StemmingOrDefault reports whether tokens are stemmed; defaults to false.
func (a *AnalysisConfig) StemmingOrDefault() bool {
	return boolOr(a.Stemming, false)
}

// StopwordEliminationOrDefault reports whether stopwords are skipped during term
// selection; defaults to true.
func (a *AnalysisConfig) StopwordEliminationOrDefault() bool {
	return boolOr(a.StopwordElimination, true)
}

// FeedbackConfig holds the feedback loop settings. Zero is a valid penalty and
// neighborhood bonus, so those are pointers.
type FeedbackConfig struct {
	// Mode is "relevance", "pseudo" or "neighborhood".
	Mode              string   `yaml:"mode"`
	Iterations        int      `yaml:"iterations"`
	ExpansionTerms    int      `yaml:"expansion_terms"`
	Reward            *float64 `yaml:"reward"`
	Penalty           *float64 `yaml:"penalty"`
	NeighborhoodBonus *float64 `yaml:"neighborhood_bonus"`
	// Oracle is "auto", "interactive" or "topk". auto prompts on a terminal and uses topk
	// otherwise; interactive also reads answers piped through stdin.
	Oracle string `yaml:"oracle"`
	TopK   int    `yaml:"top_k"`
}

// Feedback defaults.
const (
	DefaultReward            = rocchio.DefaultReward
	DefaultPenalty           = rocchio.DefaultPenalty
	DefaultNeighborhoodBonus = rocchio.DefaultNeighborhoodBonus
)

// RewardOrDefault returns the reward constant.
func (f *FeedbackConfig) RewardOrDefault() float64 { return floatOr(f.Reward, DefaultReward) }

// PenaltyOrDefault returns the penalty constant.
func (f *FeedbackConfig) PenaltyOrDefault() float64 { return floatOr(f.Penalty, DefaultPenalty) }

// NeighborhoodBonusOrDefault returns the neighborhood bonus constant.
func (f *FeedbackConfig) NeighborhoodBonusOrDefault() float64 {
	return floatOr(f.NeighborhoodBonus, DefaultNeighborhoodBonus)
}

// BackendConfig selects and configures the search backend.
type BackendConfig struct {
	// Kind is "solr" or "local".
	Kind string `yaml:"kind"`
	Rows int    `yaml:"rows"`
	// RateLimit caps backend searches per second; 0 means unlimited.
	RateLimit float64     `yaml:"rate_limit"`
	Burst     int         `yaml:"burst"`
	Solr      SolrConfig  `yaml:"solr"`
	Cache     CacheConfig `yaml:"cache"`
}

// SolrConfig holds the Solr connection settings.
type SolrConfig struct {
	URL         string        `yaml:"url"`
	Core        string        `yaml:"core"`
	QueryFields string        `yaml:"query_fields"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CacheConfig holds the Redis result cache settings. The cache is off unless enabled.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// TraceConfig holds debug trace settings. Empty Dir and no brokers disable tracing.
type TraceConfig struct {
	Dir   string      `yaml:"dir"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds the trace topic settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// CorpusConfig lists the local corpus files and directories.
type CorpusConfig struct {
	Paths []string `yaml:"paths"`
	Watch *bool    `yaml:"watch"`
}

// WatchOrDefault reports whether corpus paths are watched; defaults to true when paths are set.
func (c *CorpusConfig) WatchOrDefault() bool {
	return boolOr(c.Watch, len(c.Paths) > 0)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	cfg.expandPaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.expandPaths(".")
	return &cfg
}

func (c *Config) expandPaths(configDir string) {
	c.Storage.DatabasePath = expandPath(c.Storage.DatabasePath, configDir)
	c.Storage.BleveIndexPath = expandPath(c.Storage.BleveIndexPath, configDir)
	if c.Trace.Dir != "" {
		c.Trace.Dir = expandPath(c.Trace.Dir, configDir)
	}
	for i := range c.Corpus.Paths {
		c.Corpus.Paths[i] = expandPath(c.Corpus.Paths[i], configDir)
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Feedback.Mode {
	case "relevance", "pseudo", "neighborhood":
	default:
		errs = append(errs, fmt.Errorf("feedback.mode: unknown mode %q", c.Feedback.Mode))
	}
	switch c.Feedback.Oracle {
	case "auto", "interactive", "topk":
	default:
		errs = append(errs, fmt.Errorf("feedback.oracle: unknown oracle %q", c.Feedback.Oracle))
	}
	switch c.Analysis.Stemmer {
	case "porter", "snowball":
	default:
		errs = append(errs, fmt.Errorf("analysis.stemmer: unknown stemmer %q", c.Analysis.Stemmer))
	}
	switch c.Backend.Kind {
	case "solr", "local":
	default:
		errs = append(errs, fmt.Errorf("backend.kind: unknown backend %q", c.Backend.Kind))
	}
	if c.Backend.RateLimit < 0 {
		errs = append(errs, errors.New("backend.rate_limit must not be negative"))
	}
	if c.Feedback.Iterations < 1 {
		errs = append(errs, errors.New("feedback.iterations must be at least 1"))
	}
	if c.Feedback.ExpansionTerms < 1 {
		errs = append(errs, errors.New("feedback.expansion_terms must be at least 1"))
	}
	if c.Feedback.RewardOrDefault() <= 0 {
		errs = append(errs, errors.New("feedback.reward must be positive"))
	}
	if c.Feedback.PenaltyOrDefault() > 0 {
		errs = append(errs, errors.New("feedback.penalty must not be positive"))
	}
	return errors.Join(errs...)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func floatOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}
