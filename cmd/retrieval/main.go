// Command retrieval indexes a document collection, derives its stop words
// and evaluates queries against it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/resilience"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	paramsPath string
	cfg        *config.Config
	metrics    *metrics.Metrics
	health     *health.Checker
	shutdown   func(context.Context) error
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "retrieval",
		Short: "Index a collection and run retrieval experiments",
		Long: `Index a document collection, select its stop words and evaluate
queries with bm25, tfidf or tf scoring.

Configuration is layered (later sources override earlier):
  1. Built-in defaults
  2. YAML file (--config)
  3. Four-line parameters file (--params or RE_EXPERIMENT_PARAMETERS_FILE):
     query file, collection location, output location, retrieval mode
  4. RE_* environment variables, e.g. RE_EXPERIMENT_MODE, RE_INDEXER_WORKERS`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.shutdown == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.shutdown(ctx)
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&a.paramsPath, "params", "", "path to four-line parameters file")

	cmd.AddCommand(runCmd(a))
	cmd.AddCommand(indexCmd(a))
	cmd.AddCommand(stopwordsCmd(a))
	cmd.AddCommand(searchCmd(a))
	cmd.AddCommand(postingsCmd(a))
	cmd.AddCommand(versionCmd())
	return cmd
}

func (a *app) load() error {
	if a.paramsPath != "" {
		if err := os.Setenv(config.EnvPrefix+"_EXPERIMENT_PARAMETERS_FILE", a.paramsPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	a.metrics = metrics.New()
	a.health = health.NewChecker()
	a.health.Register("index_dir", health.DirCheck(cfg.Indexer.DataDir, cfg.Indexer.OpenMode == config.OpenModeUpdate))
	if cfg.Metrics.Enabled {
		a.shutdown = a.metrics.StartServer(cfg.Metrics.Port, metrics.Route{Pattern: "/healthz", Handler: a.health.Handler()})
	}
	return nil
}

// queryCache connects the optional Redis cache. A cache that cannot be
// reached is logged and skipped.
func (a *app) queryCache(ctx context.Context) (*cache.QueryCache, func()) {
	if !a.cfg.Redis.Enabled {
		return nil, func() {}
	}
	var client *pkgredis.Client
	err := resilience.Retry(ctx, "redis-connect", resilience.Backoff{Attempts: 2}, func(ctx context.Context) error {
		var err error
		client, err = pkgredis.NewClient(ctx, a.cfg.Redis)
		return err
	})
	if err != nil {
		slog.Warn("redis unavailable, query cache disabled", "addr", a.cfg.Redis.Addr, "error", err)
		return nil, func() {}
	}
	a.health.RegisterOptional("redis", client.Ping)
	slog.Info("query cache enabled", "addr", a.cfg.Redis.Addr, "ttl", a.cfg.Redis.CacheTTL)
	store := cache.WithBreaker(client, resilience.NewBreaker("redis", 3, 30*time.Second))
	return cache.New(store, a.cfg.Redis.CacheTTL, a.metrics), func() { _ = client.Close() }
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "retrieval version %s (%s)\n", version, commit)
		},
	}
}
