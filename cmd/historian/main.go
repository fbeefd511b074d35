// cmd/historian is an asynchronous historian service that pops launch records
// from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/picofermibagel/internal/cache"
	"github.com/jason-s-yu/picofermibagel/internal/config"
	"github.com/jason-s-yu/picofermibagel/internal/database"
	"github.com/jason-s-yu/picofermibagel/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.Logger()
	if cfg.DatabaseURL == "" {
		logger.Fatal("historian needs DATABASE_URL or POSTGRES_USER/PG_HOST/PG_DATABASE")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("database: %v", err)
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.NewService(rdb, database.NewLaunchHistory(pool), logger, historian.Options{
		Queue:      cfg.LaunchQueueName,
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlush,
	})
	svc.Run(ctx)
	logger.Info("historian shutdown complete")
}
