package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/wa-outreach/internal/config"
	"github.com/ignite/wa-outreach/internal/ingest"
	"github.com/ignite/wa-outreach/internal/labels"
	"github.com/ignite/wa-outreach/internal/pkg/distlock"
	"github.com/ignite/wa-outreach/internal/pkg/logger"
	"github.com/ignite/wa-outreach/internal/repository/postgres"
	"github.com/ignite/wa-outreach/internal/service/status"
)

const projectorLockKey = "ingest-projector"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())
	logger.Info("starting event projector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var (
		rdb  *redis.Client
		opts []ingest.ProjectorOption
	)
	if cfg.Redis.Enabled() {
		ropts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(ropts)
		defer rdb.Close()

		// Projected events change run progress; drop the cached dashboards.
		statuses := status.NewService(postgres.NewStatusRepo(db), labels.New(cfg.Labels.DefaultLocale),
			status.WithCache(rdb, cfg.Status.CacheTTL()))
		opts = append(opts, ingest.OnProjected(statuses.Invalidate))
	}

	lock := distlock.NewLock(rdb, db, projectorLockKey, cfg.Ingest.LockTTL())
	projector := ingest.NewProjector(postgres.NewInboxRepo(db), lock, cfg.Ingest.BatchSize, opts...)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		projector.Run(ctx, cfg.Ingest.PollInterval())
	}()
	logger.Info("projector running", "interval", cfg.Ingest.PollInterval(), "batch", cfg.Ingest.BatchSize)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down projector")
	cancel()
	<-stopped
	logger.Info("projector stopped")
}
