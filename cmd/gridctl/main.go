// Command gridctl runs slot-grid maintenance from a scheduler (cron,
// Kubernetes CronJob) and mints admin tokens for the maintenance API.
//
//	gridctl run                      daily job: refresh + purge
//	gridctl refresh [--date ddmmyy]  create missing slots of one day
//	gridctl purge [--before ddmmyy]  delete expired slots
//	gridctl backfill                 create missing slots for the whole window
//	gridctl token [--subject s]      print an ADMIN JWT
//	gridctl notify                   consume promotion notices
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/config"
	"github.com/iliyamo/room-slot-reservation/internal/database"
	"github.com/iliyamo/room-slot-reservation/internal/logger"
	"github.com/iliyamo/room-slot-reservation/internal/queue"
	"github.com/iliyamo/room-slot-reservation/internal/repository"
	"github.com/iliyamo/room-slot-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := service.PolicyFromConfig(cfg, config.LoadCacheConfig())
	e := &env{
		out:       os.Stdout,
		jwtSecret: cfg.JWTSecret,
		today: func() time.Time {
			y, m, d := time.Now().In(cfg.Location).Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		},
		openGrid: func() (grid, func(), error) {
			db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				log.Error("database connection failed", zap.String("target", cfg.DSNTarget()), zap.Error(err))
				return nil, nil, err
			}
			if err := database.EnsureSchema(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			g := service.NewGridMaintainer(repository.NewStore(db), policy, log, nil)
			return g, func() { _ = db.Close() }, nil
		},
		consume: func(ctx context.Context) error {
			if cfg.RabbitURL == "" {
				return errors.New("RABBITMQ_URL is not set")
			}
			return queue.NewConsumer(cfg.RabbitURL, log).Run(ctx)
		},
	}
	code := run(ctx, e, os.Stderr, os.Args[1:])
	_ = log.Sync()
	stop()
	os.Exit(code)
}
