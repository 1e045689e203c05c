package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/api"
	"github.com/opencampus/portal-crawler/internal/crawler"
	"github.com/opencampus/portal-crawler/internal/session"
	"github.com/opencampus/portal-crawler/internal/store"
	"github.com/opencampus/portal-crawler/internal/store/memory"
	"github.com/opencampus/portal-crawler/internal/store/postgres"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs the crawl pipeline",
		Long: `Runs the crawl phases in dependency order: institutions and
departments first, then classes, courses, admissions, enrollments and
turn schedules through the worker pools. With crawler.cron set, the
pipeline re-runs on that schedule until interrupted.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	auth := session.NewAuthenticator(cfg.Portal.AuthTTL())
	sess, err := session.New(session.Config{
		BaseURL:    cfg.Portal.BaseURL,
		LoginPath:  cfg.Portal.LoginPath,
		Username:   cfg.Portal.Username,
		Password:   cfg.Portal.Password,
		CookieFile: cfg.Portal.CookieFile,
		UserAgent:  cfg.Portal.UserAgent,
		Timeout:    cfg.Portal.Timeout(),
	}, auth, log.Named("session"))
	if err != nil {
		return fmt.Errorf("build portal session: %w", err)
	}

	if cfg.Server.Enabled {
		startStatusServer(ctx, st)
	}

	orch := crawler.NewOrchestrator(st, sess, crawler.NewURLs(cfg.Portal.BaseURL), crawler.Config{
		Workers:             cfg.Crawler.Workers,
		CacheLookups:        cfg.Crawler.CacheLookups,
		DestructiveTurnSync: cfg.Crawler.DestructiveTurnSync,
		FirstYear:           cfg.Crawler.FirstYear,
	}, log.Named("crawler"))

	if cfg.Crawler.Cron == "" {
		return runOnce(ctx, orch)
	}
	return runOnSchedule(ctx, orch)
}

func runOnce(ctx context.Context, orch *crawler.Orchestrator) error {
	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}
	log.Info("crawl finished")
	return nil
}

// runOnSchedule re-runs the pipeline on the configured cron expression until
// the process is interrupted. Runs are skipped while a previous one is still
// going; the portal is slow enough that overlap would only thrash it.
func runOnSchedule(ctx context.Context, orch *crawler.Orchestrator) error {
	running := make(chan struct{}, 1)
	c := cron.New()
	_, err := c.AddFunc(cfg.Crawler.Cron, func() {
		select {
		case running <- struct{}{}:
		default:
			log.Warn("previous crawl still running, skipping scheduled run")
			return
		}
		defer func() { <-running }()
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduled crawl failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cfg.Crawler.Cron, err)
	}

	log.Info("crawl scheduled", zap.String("cron", cfg.Crawler.Cron))
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// openStore picks postgres when a DSN is configured, the in-memory store
// otherwise.
func openStore(ctx context.Context) (store.Store, error) {
	if cfg.DB.DSN == "" {
		log.Warn("no database configured, snapshot is kept in memory only")
		return memory.New(), nil
	}
	st, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return st, nil
}

func startStatusServer(ctx context.Context, st store.Store) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(st, log.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("status server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("status server shutdown error", zap.Error(err))
		}
	}()
}
