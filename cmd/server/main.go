package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/wa-outreach/internal/api"
	"github.com/ignite/wa-outreach/internal/config"
	"github.com/ignite/wa-outreach/internal/dispatch"
	"github.com/ignite/wa-outreach/internal/ingest"
	"github.com/ignite/wa-outreach/internal/labels"
	"github.com/ignite/wa-outreach/internal/message"
	"github.com/ignite/wa-outreach/internal/pkg/httpretry"
	"github.com/ignite/wa-outreach/internal/pkg/logger"
	"github.com/ignite/wa-outreach/internal/repository/postgres"
	"github.com/ignite/wa-outreach/internal/service/campaign"
	"github.com/ignite/wa-outreach/internal/service/status"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	return ln.Close()
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		fatal("pre-flight check failed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
	})
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fatal("invalid redis url", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The cache degrades to direct reads; keep serving.
			logger.Warn("redis unreachable, summaries will not be cached", "error", err)
		}
	}

	lbl := labels.New(cfg.Labels.DefaultLocale)
	if cfg.Labels.OverridesPath != "" {
		if err := lbl.LoadOverrides(cfg.Labels.OverridesPath); err != nil {
			fatal("failed to load label overrides", err)
		}
	}

	catalog := message.DefaultCatalog()
	if cfg.Messages.TemplatesPath != "" {
		if catalog, err = message.LoadCatalog(cfg.Messages.TemplatesPath); err != nil {
			fatal("failed to load message templates", err)
		}
	}

	dispatcher := dispatch.NewClient(cfg.Dispatch.URL, cfg.Dispatch.InternalToken, cfg.Dispatch.Timeout(),
		httpretry.NewRetryClient(&http.Client{Timeout: cfg.Dispatch.Timeout()},
			httpretry.Options{MaxRetries: cfg.Dispatch.MaxRetries}))
	if !dispatcher.Enabled() {
		logger.Warn("dispatch url not configured, launches will not be dispatched")
	}

	materializer := postgres.NewMaterializer(db)
	campaigns := campaign.NewService(
		postgres.NewCampaignRepo(db),
		postgres.NewRunRepo(db),
		materializer,
		campaign.WithDispatcher(dispatcher),
		campaign.WithPresets(postgres.NewPresetRepo(db)),
		campaign.WithAudienceCounter(materializer),
		campaign.WithThrottleDefaults(cfg.Throttle.Defaults()),
		campaign.WithRenderer(message.NewRenderer(message.WithCatalog(catalog))),
	)

	statusOpts := []status.Option{status.WithRecentLimit(cfg.Status.RecentLimit)}
	if rdb != nil {
		statusOpts = append(statusOpts, status.WithCache(rdb, cfg.Status.CacheTTL()))
	}
	statuses := status.NewService(postgres.NewStatusRepo(db), lbl, statusOpts...)

	handlers := api.NewHandlers(campaigns, statuses, ingest.NewReceiver(postgres.NewInboxRepo(db)))
	router := api.SetupRoutes(handlers, api.NewHealthChecker(db, rdb), api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		InternalToken:  cfg.Dispatch.InternalToken,
	})
	if cfg.Dispatch.InternalToken == "" {
		logger.Warn("internal token not configured, /internal routes reject every request")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("server error", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
