package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vidasmart/coachgw/internal/auth"
	"github.com/vidasmart/coachgw/internal/coach"
	"github.com/vidasmart/coachgw/internal/config"
	"github.com/vidasmart/coachgw/internal/events"
	"github.com/vidasmart/coachgw/internal/events/direct"
	"github.com/vidasmart/coachgw/internal/events/natspub"
	"github.com/vidasmart/coachgw/internal/frontdoor"
	"github.com/vidasmart/coachgw/internal/frontdoor/chat"
	"github.com/vidasmart/coachgw/internal/frontdoor/plans"
	"github.com/vidasmart/coachgw/internal/guard"
	"github.com/vidasmart/coachgw/internal/prompt"
	"github.com/vidasmart/coachgw/internal/provider"
	"github.com/vidasmart/coachgw/internal/provider/openai"
	"github.com/vidasmart/coachgw/internal/retention"
	"github.com/vidasmart/coachgw/internal/server"
	"github.com/vidasmart/coachgw/internal/stage"
	"github.com/vidasmart/coachgw/internal/storage"
	"github.com/vidasmart/coachgw/internal/storage/memory"
	"github.com/vidasmart/coachgw/internal/storage/sqlite"
	"github.com/vidasmart/coachgw/internal/telemetry"
	"github.com/vidasmart/coachgw/internal/tokens"
)

const limiterSweepSchedule = "@every 10m"

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Tracing.ServiceName, os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	prompts, err := loadPrompts(cfg.Prompts.Path)
	if err != nil {
		return err
	}

	if cfg.OpenAI.APIKey == "" {
		logger.Warn("openai.api_key is empty; every reply will be the fallback")
	}
	gen := provider.NewBreaker(
		openai.New(cfg.OpenAI, openai.WithLogger(logger)),
		cfg.Breaker,
		provider.WithStateListener(func(st provider.BreakerState) {
			metrics.BreakerOpen(st == provider.StateOpen)
			logger.Warn("generator circuit changed", slog.String("state", string(st)))
		}),
	)

	detector := stage.NewDetector(cfg.Detector, stage.WithLogger(logger))
	g := guard.New(cfg.Guard)
	svc := coach.NewService(detector, g, prompts, gen,
		coach.WithConfig(cfg.Coach),
		coach.WithLogger(logger),
		coach.WithMetrics(metrics),
		coach.WithCounter(tokens.NewCounter(cfg.OpenAI.Model)),
	)

	publisher, err := newPublisher(cfg, store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", slog.String("error", err.Error()))
		}
	}()

	var secret *auth.Verifier
	if cfg.Auth.SecretHash != "" {
		secret, err = auth.NewVerifier(cfg.Auth.SecretHash)
		if err != nil {
			return fmt.Errorf("auth.secret_hash: %w", err)
		}
	} else {
		logger.Warn("auth.secret_hash is empty; API routes are unauthenticated")
	}

	srv := server.New(server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Gatherer:       reg,
	}, logger, server.SecretMiddleware(secret, cfg.Auth.Header))

	chatOpts := []chat.Option{
		chat.WithPublisher(publisher),
		chat.WithMetrics(metrics),
		chat.WithLogger(logger),
	}
	var limiter *server.UserLimiter
	if cfg.RateLimit.Enabled {
		limiter = server.NewUserLimiter(cfg.RateLimit.Registered, cfg.RateLimit.Anonymous, cfg.RateLimit.Window)
		chatOpts = append(chatOpts, chat.WithLimiter(limiter))
	}
	frontdoor.Mount(srv.API, logger,
		chat.NewHandler(svc, store, chatOpts...),
		plans.NewHandler(logger),
	)

	scheduler, err := newScheduler(cfg.Retention, store, limiter, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	watchConfig(ctx, configPath, detector, g, logger)

	logger.Info("coach server starting",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.String("model", cfg.OpenAI.Model))

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("coach server stopped")
	return nil
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

func loadPrompts(path string) (*prompt.Builder, error) {
	if path == "" {
		return prompt.Default()
	}
	b, err := prompt.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return b, nil
}

// newPublisher records guard metrics in the store and, when NATS is
// configured, also publishes reply events there.
func newPublisher(cfg *config.Config, store storage.MetricStore, logger *slog.Logger) (events.Publisher, error) {
	local, err := direct.NewPublisher(store, logger)
	if err != nil {
		return nil, err
	}
	if cfg.NATS.URL == "" {
		return local, nil
	}

	remote, err := natspub.Connect(cfg.NATS)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing reply events to NATS",
		slog.String("subject", remote.ReplySubject()))
	return events.Multi{local, remote}, nil
}

func newScheduler(cfg config.RetentionConfig, store storage.Store, limiter *server.UserLimiter, logger *slog.Logger) (*retention.Scheduler, error) {
	s := retention.NewScheduler(logger)
	if cfg.Schedule != "" {
		if err := s.AddPrune(cfg.Schedule, store, cfg.MaxAge); err != nil {
			return nil, err
		}
	}
	if limiter != nil {
		err := s.AddJob(limiterSweepSchedule, "limiter-sweep", func(context.Context) error {
			if n := limiter.Sweep(); n > 0 {
				logger.Debug("dropped idle rate limit buckets", slog.Int("count", n))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// watchConfig applies detector and guard threshold changes without a
// restart. Other sections need one.
func watchConfig(ctx context.Context, path string, detector *stage.Detector, g *guard.Guard, logger *slog.Logger) {
	if _, err := os.Stat(path); err != nil {
		logger.Debug("config file not found, hot reload disabled", slog.String("path", path))
		return
	}
	w, err := config.NewWatcher(path, logger)
	if err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return
	}
	err = w.Watch(ctx, func(cfg *config.Config) {
		detector.SetThresholds(cfg.Detector)
		g.SetThresholds(cfg.Guard)
		logger.Info("thresholds reloaded")
	})
	if err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
	}
}
