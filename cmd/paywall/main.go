// Package main запускает HTTP-сервер платного доступа через Telegram Stars.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/stars-paywall/internal/config"
	"github.com/mmeshcher/stars-paywall/internal/handler"
	"github.com/mmeshcher/stars-paywall/internal/initdata"
	"github.com/mmeshcher/stars-paywall/internal/metrics"
	"github.com/mmeshcher/stars-paywall/internal/repository"
	"github.com/mmeshcher/stars-paywall/internal/service"
	"github.com/mmeshcher/stars-paywall/internal/telegram"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("entitlement store initialization error", "error", err.Error())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := service.NewService(
		store,
		initdata.NewVerifier(cfg.AuthSecret, initdata.WithMaxAge(cfg.InitDataMaxAge)),
		telegram.NewClient(cfg.TelegramAPIURL, cfg.BotToken),
		logger,
		metrics.New(registry),
		service.Options{
			Price:         cfg.Price,
			Title:         cfg.InvoiceTitle,
			Description:   cfg.InvoiceDescription,
			PayloadSecret: cfg.BotToken,
		},
	)
	defer svc.Close()

	if cfg.WebhookSecret == "" {
		sugar.Warn("WEBHOOK_SECRET is not set, webhook calls are not authenticated")
	}
	if cfg.AllowUnverifiedStatus {
		sugar.Warn("unverified GET /payment/status is enabled")
	}

	h := handler.NewHandler(svc, logger, handler.Options{
		WebhookSecret:         cfg.WebhookSecret,
		AdminKey:              cfg.AdminKey,
		AllowUnverifiedStatus: cfg.AllowUnverifiedStatus,
		Metrics:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting paywall server", "addr", cfg.RunAddress, "price", cfg.Price)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openStore выбирает хранилище: PostgreSQL, затем Redis, иначе память процесса.
func openStore(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (service.EntitlementStore, error) {
	switch {
	case cfg.DatabaseURI != "":
		sugar.Info("using postgres entitlement store")
		return repository.NewPostgresRepository(cfg.DatabaseURI)
	case cfg.RedisAddress != "":
		sugar.Infow("using redis entitlement store", "addr", cfg.RedisAddress)
		return repository.NewRedisStore(ctx, cfg.RedisAddress)
	default:
		sugar.Warn("no DATABASE_URI or REDIS_ADDRESS, entitlements are kept in memory and lost on restart")
		return repository.NewMemoryStore(), nil
	}
}
