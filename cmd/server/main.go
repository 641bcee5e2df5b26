package main

import (
	"context"
	"log"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/windcore/authsvc/internal/config"
	"github.com/windcore/authsvc/internal/database"
	"github.com/windcore/authsvc/internal/handler"
	"github.com/windcore/authsvc/internal/pipeline"
	"github.com/windcore/authsvc/internal/queue"
	"github.com/windcore/authsvc/internal/repository"
	"github.com/windcore/authsvc/internal/router"
	"github.com/windcore/authsvc/internal/service"
	"github.com/windcore/authsvc/internal/token"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	var registry token.Registry
	if rdb != nil {
		registry = token.NewRedisRegistry(rdb)
	} else {
		log.Printf("redis unavailable; using in-process revocation registry")
		registry = token.NewMemoryRegistry()
	}

	tokens := token.NewService(cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute, registry)
	pipe := pipeline.NewRunner(db)
	users := repository.NewUserRepo(db, pipe, cfg.BcryptCost)
	refresh := repository.NewRefreshTokenRepo(db, pipe, tokens, users,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	auth := service.NewAuthService(users, tokens, refresh, service.PublishAuthEvent)

	go func() {
		if err := queue.StartEventConsumer(); err != nil {
			log.Printf("event consumer stopped: %v", err)
		}
	}()

	if cfg.SweepIntervalMin > 0 {
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		go func() {
			ticker := time.NewTicker(time.Duration(cfg.SweepIntervalMin) * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if n, err := refresh.Sweep(ctx, retention); err != nil {
					log.Printf("token sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("token sweep purged %d rows", n)
				}
				cancel()
			}
		}()
	}

	e := echo.New()
	router.Register(e, handler.NewAuthHandler(auth, users), tokens,
		config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
