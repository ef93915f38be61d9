// cmd/historian/main.go runs the action-history consumer: it drains the Redis
// queue the game service publishes to and persists the stream to Postgres.
// Run it as a separate process alongside the game server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/cardtable/uno-service/internal/cache"
	"github.com/cardtable/uno-service/internal/config"
	"github.com/cardtable/uno-service/internal/database"
	"github.com/cardtable/uno-service/internal/historian"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if os.Getenv("UNO_LOG_DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatal("UNO_REDIS_ADDR is required")
	}
	if cfg.Postgres.URL == "" {
		log.Fatal("UNO_POSTGRES_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	queue, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Queue)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer queue.Close()

	db, err := database.Connect(ctx, cfg.Postgres.URL, logger.WithField("component", "postgres"))
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	svc := historian.New(cfg.Historian, queue, db, logger.WithField("component", "historian"))
	logger.Infof("historian consuming queue %q", cfg.Redis.Queue)
	svc.Run(ctx)
	logger.Info("historian shut down")
}
