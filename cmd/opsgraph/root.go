package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/opsgraph/opsgraph/pkg/opsgraph"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/config"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/memstore"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/observability"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/sources"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/statestore"
)

var (
	flagConfig      string
	flagLogLevel    string
	flagStore       string
	flagStorePath   string
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "opsgraph",
	Short: "Workflow engine for AI-assisted operations requests",
	Long: `opsgraph classifies free-text operations requests, collects monitoring
data from Prometheus, Loki, and Alertmanager, and synthesizes an answer.
Sessions are checkpointed after every step and can be resumed.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to YAML/JSON config file")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&flagStore, "store", "sqlite", "state store backend (sqlite, redis, memory)")
	pf.StringVar(&flagStorePath, "store-path", "./opsgraph.db", "sqlite file path or redis address")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "listen address for Prometheus metrics (disabled when empty)")

	rootCmd.AddCommand(runCmd, resumeCmd, sessionsCmd)
}

// environment bundles everything a command needs to execute workflows.
type environment struct {
	engine   *opsgraph.Engine
	store    statestore.Store
	memoryDB *memstore.Store
	logger   *slog.Logger
}

func (env *environment) close() {
	env.engine.Close()
	if env.memoryDB != nil {
		env.memoryDB.Close()
	}
	env.store.Close()
}

// setup builds the engine from flags and the optional config file.
func setup() (*environment, error) {
	cfg := config.New(nil)
	if flagConfig != "" {
		loaded, err := config.FromFile(flagConfig)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger := newLogger(flagLogLevel)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	caps, memoryDB, err := buildCapabilities(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	engineCfg := cfg.Sub("engine")
	opts := []opsgraph.Option{
		opsgraph.WithLogger(logger),
		opsgraph.WithDeadline(engineCfg.Duration("deadline", 5*time.Minute)),
		opsgraph.WithCallTimeout(engineCfg.Duration("call_timeout", 30*time.Second)),
		opsgraph.WithCollectionConcurrency(engineCfg.Int("collection_concurrency", 1)),
		opsgraph.WithCollectionWindow(engineCfg.Duration("collection_window", time.Hour)),
	}

	if flagMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		recorder, rerr := observability.NewPrometheusRecorder(reg)
		if rerr != nil {
			store.Close()
			if memoryDB != nil {
				memoryDB.Close()
			}
			return nil, fmt.Errorf("register metrics: %w", rerr)
		}
		opts = append(opts, opsgraph.WithMetrics(recorder))
		go serveMetrics(flagMetricsAddr, reg, logger)
	}

	engine, err := opsgraph.New(store, caps, opts...)
	if err != nil {
		store.Close()
		if memoryDB != nil {
			memoryDB.Close()
		}
		return nil, err
	}
	logger.Info("engine ready", "sources", engine.Sources())

	return &environment{engine: engine, store: store, memoryDB: memoryDB, logger: logger}, nil
}

func openStore(cfg config.Config) (statestore.Store, error) {
	storeCfg := cfg.Sub("store")
	backend := storeCfg.String("backend", flagStore)
	path := storeCfg.String("path", flagStorePath)

	switch strings.ToLower(backend) {
	case "sqlite":
		return statestore.NewSQLiteStore(path)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: path})
		return statestore.NewRedisStore(client,
			statestore.WithTTL(storeCfg.Duration("ttl", 24*time.Hour))), nil
	case "memory":
		return statestore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func buildCapabilities(cfg config.Config) (opsgraph.Capabilities, *memstore.Store, error) {
	llmCfg := cfg.Sub("llm")
	llm := capability.NewClaudeCLI(
		capability.WithClaudePath(llmCfg.String("path", "claude")),
		capability.WithModel(llmCfg.String("model", "")),
		capability.WithCallTimeout(llmCfg.Duration("timeout", 30*time.Second)),
	)

	caps := opsgraph.Capabilities{
		Classifier: llm,
		Summarizer: llm,
	}

	srcCfg := cfg.Sub("sources")
	if u := srcCfg.String("prometheus_url", ""); u != "" {
		caps.Sources = append(caps.Sources, sources.NewPrometheus(u))
	}
	if u := srcCfg.String("loki_url", ""); u != "" {
		caps.Sources = append(caps.Sources, sources.NewLoki(u))
	}
	if u := srcCfg.String("alertmanager_url", ""); u != "" {
		caps.Sources = append(caps.Sources, sources.NewAlertmanager(u))
	}

	var memoryDB *memstore.Store
	if path := cfg.Sub("memory").String("path", ""); path != "" {
		db, err := memstore.Open(path)
		if err != nil {
			return caps, nil, fmt.Errorf("open memory store: %w", err)
		}
		memoryDB = db
		caps.Memory = db
		caps.Extractor = memstore.NewExtractor(db)
	}

	return caps, memoryDB, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "addr", addr, "error", err)
	}
}
