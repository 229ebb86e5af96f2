// Package main is the speechlab CLI entry point.
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
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/cli"
	"github.com/hyperjump/speechlab/internal/config"
	"github.com/hyperjump/speechlab/internal/embedding"
	"github.com/hyperjump/speechlab/internal/evaluator"
	"github.com/hyperjump/speechlab/internal/indexer"
	"github.com/hyperjump/speechlab/internal/keyword"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/observe"
	"github.com/hyperjump/speechlab/internal/server"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/submission"
	"github.com/hyperjump/speechlab/internal/transcribe"
	"github.com/hyperjump/speechlab/internal/vector"
	"github.com/hyperjump/speechlab/internal/watcher"
	"github.com/hyperjump/speechlab/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/speechlab/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "speechlab server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded (for saving, etc.).
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
	case "server":
		runServer()
	case "evaluate":
		runEvaluate()
	case "script":
		runScript()
	case "import":
		runImport()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("speechlab version %s\n", version)
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

// setup loads config and builds the logger shared by the offline subcommands.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (inbox imports, pipeline stages, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	debugMode := cfg.Debug || *debug
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observe.Metrics
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			logger.Fatal("Failed to initialize telemetry", zap.Error(err))
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		metrics, err = observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			logger.Fatal("Failed to create metrics", zap.Error(err))
		}
	}

	components, err := initializeComponents(ctx, cfg, logger, componentOptions{
		Debug:       debugMode,
		Transcriber: true,
		Metrics:     metrics,
	})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	idx := components.Indexer
	exts := cfg.Watch.Extensions
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if !idx.Accepts(path, exts) {
				return
			}
			res, err := idx.ImportFile(ctx, path)
			if err != nil {
				logger.Warn("inbox import failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("inbox file imported", zap.String("path", path),
				zap.Int("added", res.Added), zap.Int("skipped", res.Skipped))
		},
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Storage,
		components.Indexer,
		components.Pipeline,
		components.Uploads,
		components.VectorIndex,
		cfg,
		logger,
		server.WithWatch(watchSvc, resolvedConfigPath),
		server.WithMetrics(metrics),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	watchSvc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// splitEvaluateArgs splits evaluate arguments at the first "--" into the part
// holding flags and the reference, and the recognized words.
func splitEvaluateArgs(args []string) (head, recognized []string, ok bool) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:], true
		}
	}
	return args, nil, false
}

// argsReorder moves any flags (and their values) that appear after positional
// arguments to the front so that flag.Parse sees them. Go's flag package stops
// at the first non-flag argument.
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

// joinArgs joins positional args with spaces so multi-word text works with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printEvaluateUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: speechlab evaluate [flags] <reference> -- <recognized>\n\n")
	fmt.Fprintf(fs.Output(), "Scores recognized text against a reference without audio, storage or indices.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  speechlab evaluate I like pizza -- I like pasta
  speechlab evaluate --output json "The cat sat." -- "the cat sad"
  speechlab evaluate --locale ko 저는 학생이에요 -- 저는 학생이에요
`)
}

func runEvaluate() {
	head, recognizedArgs, ok := splitEvaluateArgs(os.Args[2:])
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	outputFormat := fs.String("output", "text", "output format: text or json")
	locale := fs.String("locale", "en", "feedback locale: en or ko")
	nearMiss := fs.Float64("near-miss", evaluator.DefaultNearMissThreshold, "near-miss similarity threshold (negative disables)")
	fs.Usage = func() { printEvaluateUsage(fs) }
	_ = fs.Parse(argsReorder(head))

	reference := joinArgs(fs.Args())
	if !ok || reference == "" {
		printEvaluateUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	templates, err := evaluator.TemplatesForLocale(*locale)
	if err != nil {
		fatalf("%v", err)
	}
	ev := evaluator.New(evaluator.WithTemplates(templates), evaluator.WithNearMissThreshold(*nearMiss))
	res := ev.Evaluate(reference, joinArgs(recognizedArgs))
	if err := cli.WriteEvaluation(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runScript() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: speechlab script <add|list|practice> [flags] [args]")
		fmt.Println("  speechlab script add <text>        Add a reference script")
		fmt.Println("  speechlab script list              List scripts")
		fmt.Println("  speechlab script practice <word>   Find scripts containing a word")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("script "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	offset := fs.Int("offset", 0, "list offset")
	limit := fs.Int("limit", 50, "number of scripts to list")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{Debug: cfg.Debug})
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	switch sub {
	case "add":
		text := joinArgs(fs.Args())
		if text == "" {
			fatalf("Usage: speechlab script add <text>")
		}
		sc, err := components.Indexer.AddScript(ctx, text)
		if err != nil {
			fatalf("Add failed: %v", err)
		}
		err = cli.WriteScripts(os.Stdout, []*models.Script{sc}, format)
		if err != nil {
			fatalf("Output failed: %v", err)
		}
	case "list":
		scripts, err := components.Storage.ListScripts(ctx, *offset, *limit)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		if err := cli.WriteScripts(os.Stdout, scripts, format); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "practice":
		q := models.PracticeQuery{Word: joinArgs(fs.Args()), Limit: *limit}
		if err := q.Validate(); err != nil {
			fatalf("Usage: speechlab script practice <word>")
		}
		scripts, err := components.Indexer.PracticeScripts(ctx, q.Word, q.Limit)
		if err != nil {
			fatalf("Practice search failed: %v", err)
		}
		if err := cli.WriteScripts(os.Stdout, scripts, format); err != nil {
			fatalf("Output failed: %v", err)
		}
	default:
		fatalf("Unknown script subcommand: %s", sub)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fatalf("Usage: speechlab import [flags] <file-or-directory>")
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		fatalf("Failed to stat path: %v", err)
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{Debug: cfg.Debug})
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	var res *indexer.ImportResult
	if info.IsDir() {
		res, err = components.Indexer.ImportDirectory(ctx, path, cfg.Watch.Extensions)
	} else {
		// A single named file is imported regardless of the inbox extension filter.
		res, err = components.Indexer.ImportFile(ctx, path)
	}
	if err != nil {
		fatalf("Import failed: %v", err)
	}
	if err := cli.WriteImport(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	reembed := fs.Bool("reembed", false, "recompute every script embedding with the configured encoder first")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{Debug: cfg.Debug, SkipLoad: true})
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	if *reembed {
		n, err := components.Indexer.Reembed(ctx, cfg.Evaluation.ReembedWorkers)
		if err != nil {
			fatalf("Re-embedding failed: %v", err)
		}
		fmt.Printf("Re-embedded %d script(s)\n", n)
	} else if err := components.Indexer.Rebuild(ctx); err != nil {
		fatalf("Rebuild failed: %v", err)
	}
	fmt.Printf("Vector index rebuilt: %d entries, dimension %d\n",
		components.VectorIndex.Size(), components.VectorIndex.Dimension())
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	var status *models.Status
	if *serverURL != "" {
		// The server holds the Bleve and SQLite locks while it runs.
		status = &models.Status{}
		if err := getJSON(*serverURL+"/api/v1/status", status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		ctx := context.Background()
		components, err := initializeComponents(ctx, cfg, logger, componentOptions{Debug: cfg.Debug})
		if err != nil {
			fatalf("Failed to initialize: %v", err)
		}
		defer components.Close()
		status, err = server.CollectStatus(ctx, components.Storage, components.VectorIndex, cfg)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: speechlab watch <add|remove|list> [path]")
		fmt.Println("  speechlab watch add <path>     Add a script inbox directory")
		fmt.Println("  speechlab watch remove <path>  Stop watching a directory")
		fmt.Println("  speechlab watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	endpoint := *serverURL + "/api/v1/watch/directories"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fatalf("Usage: speechlab watch add <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		if err := doRequest(http.MethodPost, endpoint, body, http.StatusCreated, nil); err != nil {
			fatalf("Add failed: %v", err)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fatalf("Usage: speechlab watch remove <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := doRequest(http.MethodDelete, endpoint+"?path="+url.QueryEscape(path), nil, http.StatusOK, nil); err != nil {
			fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := getJSON(endpoint, &out); err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}

func getJSON(target string, out interface{}) error {
	return doRequest(http.MethodGet, target, nil, http.StatusOK, out)
}

func doRequest(method, target string, body []byte, want int, out interface{}) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, target, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Encoder      embedding.Encoder
	Transcriber  transcribe.Transcriber
	VectorIndex  *vector.MemoryIndex
	KeywordIndex *keyword.BleveIndex
	Indexer      *indexer.Indexer
	Pipeline     *submission.Pipeline
	Uploads      *submission.Uploads
}

// Close releases every initialized component.
func (c *Components) Close() {
	if c.Transcriber != nil {
		_ = c.Transcriber.Close()
	}
	if c.Encoder != nil {
		_ = c.Encoder.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

type componentOptions struct {
	Debug bool
	// Transcriber builds the speech-to-text backend, the submission pipeline
	// and the upload store. Only the server needs them.
	Transcriber bool
	// SkipLoad leaves the vector index empty instead of restoring it.
	SkipLoad bool
	Metrics  *observe.Metrics
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var debugLogger *zap.Logger
	if opts.Debug {
		debugLogger = logger
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	enc, err := embedding.New(cfg.Embedding, cfg.OpenAIAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}
	c.Encoder = enc

	c.VectorIndex = vector.NewMemoryIndex(vector.WithLogger(debugLogger))
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = kw

	c.Indexer = indexer.NewIndexer(store, enc, c.VectorIndex, kw, cfg.Storage.VectorIndexPath,
		indexer.WithLogger(logger),
		indexer.WithMetrics(opts.Metrics),
	)
	if !opts.SkipLoad {
		if err := c.Indexer.LoadIndex(ctx); err != nil {
			return nil, err
		}
	}

	if opts.Transcriber {
		tr, err := transcribe.New(cfg.Transcription, cfg.OpenAIAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize transcriber: %w", err)
		}
		c.Transcriber = tr

		templates, err := evaluator.TemplatesForLocale(cfg.Evaluation.FeedbackLocale)
		if err != nil {
			return nil, err
		}
		ev := evaluator.New(
			evaluator.WithTemplates(templates),
			evaluator.WithNearMissThreshold(cfg.Evaluation.NearMissThreshold),
		)
		c.Pipeline = submission.NewPipeline(store, store, tr, enc, c.VectorIndex,
			submission.WithLogger(logger),
			submission.WithMetrics(opts.Metrics),
			submission.WithEvaluator(ev),
			submission.WithSimilarCount(cfg.Evaluation.SimilarScriptsCount),
		)
		c.Uploads, err = submission.NewUploads(cfg.Storage.UploadDir, cfg.Server.MaxUploadBytes)
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return c, nil
}

func printUsage() {
	fmt.Println(`speechlab - Pronunciation practice and evaluation server

Usage:
  speechlab server [flags]                      Start the HTTP server and script inbox watcher
  speechlab evaluate [flags] <ref> -- <heard>   Score recognized text against a reference
  speechlab script add <text>                   Add a reference script
  speechlab script list [flags]                 List scripts
  speechlab script practice <word>              Find practice scripts containing a word
  speechlab import [flags] <file|dir>           Import scripts from documents
  speechlab reindex [--reembed]                 Rebuild the vector index
  speechlab status [flags]                      Show catalog/index/disk status
  speechlab watch <add|remove|list>             Manage script inbox directories
  speechlab version                             Show version
  speechlab help                                Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/speechlab/config.yaml)
  --debug            Enable debug logging

Evaluate Flags:
  --output string     Output format: text or json (default: text)
  --locale string     Feedback locale: en or ko (default: en)
  --near-miss float   Near-miss threshold; negative disables (default: 0.70)

Script / Import Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)
  --offset, --limit  Paging for script list and practice

Reindex Flags:
  --config string    Config file path
  --reembed          Recompute embeddings with the configured encoder (after switching models)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  speechlab server
  speechlab evaluate I like pizza -- I like pasta
  speechlab evaluate --output json "Good morning" -- "good moaning"
  speechlab script add "The cat sat on the mat."
  speechlab import lessons/week1.docx
  speechlab reindex --reembed
  speechlab status --output json
  speechlab watch add ~/speechlab/inbox`)
}
