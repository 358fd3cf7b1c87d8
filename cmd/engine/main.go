package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	execution "main/internal/application/service/execution"
	portfolio "main/internal/application/service/portfolio"
	reporting "main/internal/application/service/reporting"
	"main/internal/config"
	trading "main/internal/domain/entity/trading"
	"main/internal/infrastructure/broker"
	"main/internal/infrastructure/loader"
	"main/internal/infrastructure/persistence"
	infrahttp "main/internal/interfaces/http"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	printBanner()
	logger.WithFields(logrus.Fields{
		"env":         cfg.Env,
		"trades_file": cfg.TradesFile,
	}).Info("starting trade batch engine")

	gateway, err := persistence.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init persistence: %v", err)
	}
	defer gateway.Close()

	var publisher *broker.Publisher
	var enginePublisher execution.OutcomePublisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err = broker.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.OutcomesExchange, broker.BatchConfig{
			Size:    cfg.RabbitMQ.BatchSize,
			Timeout: cfg.RabbitMQ.BatchTimeout,
		}, logger)
		if err != nil {
			logger.Fatalf("failed to init outcome publisher: %v", err)
		}
		publisher.Run(ctx)
		defer publisher.Close(context.Background())
		enginePublisher = publisher
	}

	ledger := portfolio.NewService()
	engine := execution.NewService(execution.Config{
		Workers:       cfg.Engine.Workers,
		TradeTimeout:  cfg.Engine.TradeTimeout,
		ShutdownGrace: cfg.Engine.ShutdownGrace,
	}, ledger, gateway, enginePublisher, logger)
	defer engine.Shutdown()

	trades, err := loader.New(cfg.TradesFile, logger).Load()
	if err != nil {
		logger.Fatalf("failed to read trades file %q: %v", cfg.TradesFile, err)
	}
	if len(trades) == 0 {
		logger.Warn("no trades loaded, exiting")
		return
	}

	result, err := engine.ProcessAll(ctx, trades)
	if err != nil {
		logger.Fatalf("batch processing failed: %v", err)
	}

	reporting.NewService(os.Stdout).WriteAll(trades, ledger, result)

	if cfg.HTTP.Enabled() {
		if err := serveReports(ctx, cfg, ledger, trades, result, logger); err != nil {
			logger.Errorf("reporting api stopped with error: %v", err)
		}
	}

	logger.Info("engine completed")
}

// serveReports keeps the process alive exposing the finished batch read-only
// until the context is cancelled.
func serveReports(ctx context.Context, cfg *config.Config, ledger *portfolio.Service, trades []*trading.Trade, result execution.Result, logger *logrus.Logger) error {
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	handler := infrahttp.NewHandler(ledger, trades, result, redisClient, cacheTTL)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	logger.WithField("addr", cfg.HTTP.Addr()).Info("reporting api listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printBanner() {
	fmt.Println()
	fmt.Println("+======================================================================+")
	fmt.Println("|               CONCURRENT TRADE BATCH PROCESSING ENGINE               |")
	fmt.Println("+======================================================================+")
	fmt.Println("|  >> Concurrent trade execution     (bounded worker pool)            |")
	fmt.Println("|  >> Relational persistence         (PostgreSQL via pgx)             |")
	fmt.Println("|  >> In-memory portfolio ledger     (sharded position map)           |")
	fmt.Println("|  >> Summary reports & read-only API                                 |")
	fmt.Println("+======================================================================+")
	fmt.Println()
}
