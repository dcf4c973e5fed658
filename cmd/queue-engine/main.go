package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hameed6991/queueless/internal/config"
	"github.com/hameed6991/queueless/internal/httpapi"
	"github.com/hameed6991/queueless/internal/store/postgres"
	"github.com/hameed6991/queueless/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if cfg.MigrateOnStart {
		if err := postgres.MigrateUp(cfg.DatabaseURL); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{})
	handler := httpapi.NewHandler(st)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		CustomerPerMinute: cfg.CustomerRatePerMinute,
		CustomerBurst:     cfg.CustomerRateBurst,
	})

	var locker worker.Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		locker = worker.NewRedisLocker(client)
	}

	notifier := worker.NewNotifier(cfg.NotifierKind, cfg.PushWebhookURL, cfg.PushWebhookToken, log)
	alerts := worker.New(st, notifier, worker.Config{
		ThresholdMinutes: cfg.AlertThresholdMinutes,
		SendTimeout:      cfg.AlertSendTimeout,
		Locker:           locker,
		Log:              log,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.AlertInterval > 0 {
		go worker.Start(workerCtx, cfg.AlertInterval, alerts)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      limiter.Middleware(httpapi.LoggingMiddleware(log, handler.Routes())),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("queue-engine listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}
