package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digistore-be/internal/config"
	"digistore-be/internal/db"
	"digistore-be/internal/download"
	"digistore-be/internal/httpapi"
	"digistore-be/internal/kafka"
	"digistore-be/internal/logger"
	"digistore-be/internal/middleware"
	"digistore-be/internal/order"
	"digistore-be/internal/product"
	"digistore-be/internal/redisx"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 5 * time.Second
	producerBuffer  = 1024
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database := db.InitDB(cfg)
	defer database.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			logger.L().Warn("redis unavailable, download link cache degraded", zap.Error(err))
		}
	}

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, producerBuffer)
		producer.Start(ctx)
	}

	limiter := middleware.NewRateLimiter(ctx, cfg.InternalServiceKey)
	router := setupRouter(cfg, database, rdb, producer, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.L().Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("listen failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.L().Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("http shutdown failed", zap.Error(err))
	}

	if producer != nil {
		producer.Close()
		producer.WaitClosed()
	}
	cancel()
}

// setupRouter wires repositories and services. rdb and producer may be nil.
func setupRouter(
	cfg *config.Config,
	database *sql.DB,
	rdb *redis.Client,
	producer *kafka.Producer,
	limiter *middleware.RateLimiter,
) http.Handler {
	var cache download.LinkCache
	if rdb != nil {
		cache = redisx.NewLinkCache(rdb)
	}

	var events order.EventPublisher = order.NopPublisher{}
	if producer != nil {
		events = producer
	}

	issuer := download.NewIssuer(
		download.NewRepository(database),
		cache,
		cfg.DownloadBaseURL,
		cfg.DownloadLinkTTL,
	)

	orderSvc := order.NewService(
		order.NewRepository(database),
		product.NewRepository(database),
		issuer,
		events,
	)

	return httpapi.NewRouter(httpapi.Deps{
		Orders:     orderSvc,
		JWTSecret:  []byte(cfg.JWTSecret),
		CORSOrigin: cfg.CORSOrigin,
		Limiter:    limiter,
	})
}
