// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/cardtable/uno-service/internal/auth"
	"github.com/cardtable/uno-service/internal/cache"
	"github.com/cardtable/uno-service/internal/config"
	"github.com/cardtable/uno-service/internal/database"
	"github.com/cardtable/uno-service/internal/handlers"
	"github.com/cardtable/uno-service/internal/middleware"
	"github.com/cardtable/uno-service/internal/uno"
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

	sessions, err := auth.NewSessions(cfg.Auth.TokenExpiry)
	if err != nil {
		log.Fatalf("failed to init session keys: %v", err)
	}

	ctx := context.Background()

	// Postgres and Redis are both optional: the table engine runs fine
	// without persistence or an action history.
	var db *database.Store
	if cfg.Postgres.URL != "" {
		db, err = database.Connect(ctx, cfg.Postgres.URL, logger.WithField("component", "postgres"))
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer db.Close()
	} else {
		logger.Warn("UNO_POSTGRES_URL not set, score persistence disabled")
	}

	var history uno.ActionLog
	if cfg.Redis.Addr != "" {
		queue, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Queue)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer queue.Close()
		history = queue
	} else {
		logger.Warn("UNO_REDIS_ADDR not set, action history disabled")
	}

	gs := handlers.NewGameServer(logger, cfg, sessions, db, history)
	defer gs.Close()

	server := &http.Server{
		Handler:      middleware.LogMiddleware(logger)(gs.Handler()),
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 60,
	}

	l, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
