// Package main is the qexpand CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/qexpand/internal/cli"
	"github.com/hyperjump/qexpand/internal/config"
	"github.com/hyperjump/qexpand/internal/feedback"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/internal/server"
	"github.com/hyperjump/qexpand/internal/storage"
	"github.com/hyperjump/qexpand/internal/watcher"
	"github.com/hyperjump/qexpand/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/qexpand/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence, and a missing default file means built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "expand":
		runExpand()
	case "serve", "server":
		runServe()
	case "index":
		runIndex()
	case "sessions":
		runSessions()
	case "version", "--version", "-v":
		fmt.Printf("qexpand version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// buildQuery joins all positional args with spaces so multi-word queries work the same
// with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags that appear after the query to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// parseIDs parses a comma separated list of play ids.
func parseIDs(s string) ([]int, error) {
	var ids []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid play id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type expandFlags struct {
	mode       string
	iterations int
	terms      int
	oracle     string
	topK       int
	relevant   string
}

// apply overrides cfg with the flags that were set.
func (f *expandFlags) apply(cfg *config.Config) error {
	if f.mode != "" {
		cfg.Feedback.Mode = f.mode
	}
	if f.iterations > 0 {
		cfg.Feedback.Iterations = f.iterations
	}
	if f.terms > 0 {
		cfg.Feedback.ExpansionTerms = f.terms
	}
	if f.oracle != "" {
		cfg.Feedback.Oracle = f.oracle
	}
	if f.topK > 0 {
		cfg.Feedback.TopK = f.topK
	}
	return cfg.Validate()
}

// chooseOracle picks the relevance source of a CLI session. Explicit ids win; pseudo mode
// and the topk oracle label the first K results. The interactive oracle reads stdin
// whether or not it is a terminal; auto prompts only on a terminal.
func chooseOracle(cfg *config.Config, relevant []int, interactive bool, logger *zap.Logger) feedback.Oracle {
	if len(relevant) > 0 {
		return feedback.NewJudgments(relevant...)
	}
	topK := feedback.TopK{K: cfg.Feedback.TopK}
	if cfg.Feedback.Mode == string(models.ModePseudo) || cfg.Feedback.Oracle == "topk" {
		return topK
	}
	if cfg.Feedback.Oracle != "interactive" && !interactive {
		logger.Warn("stdin is not a terminal, using top-k relevance", zap.Int("k", topK.K))
		return topK
	}
	return feedback.NewInteractive(os.Stdin, os.Stdout)
}

func printExpandUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: qexpand expand [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Each round fetches results for the current query, asks which plays are relevant,
and appends the best scoring new terms to the query.
  • --mode pseudo treats the first --topk results as relevant.
  • --mode neighborhood rewards terms found next to query terms.
  • --relevant 12,40 uses fixed judgments instead of prompting.

Examples:
  qexpand expand var goal
  qexpand expand --mode pseudo --iterations 5 penalty saved
  qexpand expand --server http://localhost:8080 --output json offside
`)
}

func runExpand() {
	fs := flag.NewFlagSet("expand", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "run the session on a qexpand server instead of locally")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	var f expandFlags
	fs.StringVar(&f.mode, "mode", "", "feedback mode: relevance, pseudo, or neighborhood (default from config)")
	fs.IntVar(&f.iterations, "iterations", 0, "number of feedback rounds (default from config)")
	fs.IntVar(&f.terms, "terms", 0, "expansion terms added per round (default from config)")
	fs.StringVar(&f.oracle, "oracle", "", "relevance source: auto, interactive, or topk (default from config)")
	fs.IntVar(&f.topK, "topk", 0, "results treated as relevant by the top-k oracle")
	fs.StringVar(&f.relevant, "relevant", "", "comma separated ids of relevant plays")
	fs.Usage = func() { printExpandUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		printExpandUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	relevant, err := parseIDs(f.relevant)
	if err != nil {
		fatalf("%v", err)
	}

	if *serverURL != "" {
		sess, err := expandViaHTTP(*serverURL, query, &f, relevant)
		if err != nil {
			fatalf("Expand failed: %v", err)
		}
		if err := cli.WriteSession(os.Stdout, sess, format); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if err := f.apply(cfg); err != nil {
		fatalf("Invalid flags: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, false)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	opts, err := feedbackOptions(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	oracle := chooseOracle(cfg, relevant, term.IsTerminal(int(os.Stdin.Fd())), logger)
	loop := feedback.NewLoop(components.Backend, oracle, components.Tokenizer, opts, components.LoopOptions()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sess, runErr := loop.Run(ctx, query)
	if err := cli.WriteSession(os.Stdout, sess, format); err != nil {
		fatalf("Output failed: %v", err)
	}
	if runErr != nil {
		fatalf("Session ended early: %v", runErr)
	}
}

func expandViaHTTP(serverURL, query string, f *expandFlags, relevant []int) (*models.Session, error) {
	body := map[string]interface{}{
		"query":           query,
		"mode":            f.mode,
		"iterations":      f.iterations,
		"expansion_terms": f.terms,
		"top_k":           f.topK,
	}
	endpoint := "/api/v1/expand"
	if len(relevant) > 0 {
		endpoint = "/api/v1/feedback"
		body["relevant_ids"] = relevant
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var sess models.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &sess, nil
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (corpus changes, backend requests, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("backend", cfg.Backend.Kind),
	)

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if n, err := components.Indexer.SyncKeywordIndex(ctx); err != nil {
		logger.Warn("keyword index sync failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("keyword index synced from storage", zap.Int("plays", n))
	}

	var watchSvc *watcher.Watcher
	if cfg.Corpus.WatchOrDefault() {
		watchSvc = watcher.NewWatcher(cfg.Corpus.Paths, components.Indexer, watcher.WithLogger(logger))
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watchSvc.SyncExisting()
	} else {
		for _, p := range cfg.Corpus.Paths {
			if n, err := components.Indexer.IndexPath(ctx, p); err != nil {
				logger.Warn("corpus path indexing failed", zap.String("path", p), zap.Error(err))
			} else {
				logger.Info("corpus path indexed", zap.String("path", p), zap.Int("plays", n))
			}
		}
	}

	opts, err := feedbackOptions(cfg)
	if err != nil {
		logger.Fatal("Invalid feedback settings", zap.Error(err))
	}
	deps := server.Deps{
		Backend:     components.Backend,
		Tokenizer:   components.Tokenizer,
		Feedback:    opts,
		LoopOptions: components.LoopOptions(),
		Storage:     components.Storage,
		Indexer:     components.Indexer,
		Metrics:     components.Metrics,
		Config:      cfg,
	}
	if watchSvc != nil {
		deps.Watcher = watchSvc
	}
	srv := server.NewServer(deps, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	remove := fs.Bool("remove", false, "remove the plays loaded from the given files instead of indexing them")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: qexpand index [flags] <file-or-directory>...")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	for _, path := range fs.Args() {
		if *remove {
			abs, _ := filepath.Abs(path)
			n, err := components.Indexer.RemoveSource(ctx, abs)
			if err != nil {
				fatalf("Removing %s failed: %v", path, err)
			}
			fmt.Printf("Removed %d play(s) from %s\n", n, abs)
			continue
		}
		n, err := components.Indexer.IndexPath(ctx, path)
		if err != nil {
			fatalf("Indexing %s failed: %v", path, err)
		}
		fmt.Printf("Indexed %d play(s) from %s\n", n, path)
	}
}

func runSessions() {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 20, "number of sessions to list")
	offset := fs.Int("offset", 0, "number of sessions to skip")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if fs.NArg() > 0 {
		sess, err := store.GetSession(ctx, fs.Arg(0))
		if errors.Is(err, storage.ErrNotFound) {
			fatalf("Session not found: %s", fs.Arg(0))
		}
		if err != nil {
			fatalf("Failed to load session: %v", err)
		}
		if err := cli.WriteSession(os.Stdout, sess, format); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	sessions, err := store.ListSessions(ctx, *offset, *limit)
	if err != nil {
		fatalf("Failed to list sessions: %v", err)
	}
	if err := cli.WriteSessions(os.Stdout, sessions, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func printUsage() {
	fmt.Println(`qexpand - Iterative query expansion over football plays

Usage:
  qexpand expand [flags] <query>     Run a relevance feedback session
  qexpand serve [flags]              Start the HTTP server
  qexpand index [flags] <path>...    Load corpus files into the local plays corpus
  qexpand sessions [flags] [id]      List past sessions or show one
  qexpand version                    Show version
  qexpand help                       Show this help

Expand Flags:
  --config string      Config file path (default: /usr/local/etc/qexpand/config.yaml)
  --mode string        relevance, pseudo, or neighborhood
  --iterations int     Number of feedback rounds
  --terms int          Expansion terms added per round
  --oracle string      interactive or topk
  --topk int           Results treated as relevant by the top-k oracle
  --relevant string    Comma separated ids of relevant plays
  --server string      Run the session on a qexpand server
  --output string      text or json (default: text)

Serve Flags:
  --config string    Config file path
  --debug            Enable debug logging

Index Flags:
  --config string    Config file path
  --remove           Remove the plays loaded from the given files

Sessions Flags:
  --limit int        Number of sessions to list (default: 20)
  --offset int       Number of sessions to skip
  --output string    text or json (default: text)

Examples:
  qexpand expand var goal
  qexpand expand --mode pseudo --iterations 5 penalty saved
  qexpand index plays.jsonl matches/
  qexpand serve
  qexpand sessions --output json`)
}
