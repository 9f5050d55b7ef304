package main // entry point of the reservation API server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/cache"
	"github.com/iliyamo/room-slot-reservation/internal/config"
	"github.com/iliyamo/room-slot-reservation/internal/database"
	"github.com/iliyamo/room-slot-reservation/internal/handler"
	"github.com/iliyamo/room-slot-reservation/internal/logger"
	"github.com/iliyamo/room-slot-reservation/internal/middleware"
	"github.com/iliyamo/room-slot-reservation/internal/queue"
	"github.com/iliyamo/room-slot-reservation/internal/repository"
	"github.com/iliyamo/room-slot-reservation/internal/router"
	"github.com/iliyamo/room-slot-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connection failed", zap.String("target", cfg.DSNTarget()), zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		log.Fatal("schema bootstrap failed", zap.Error(err))
	}

	rdb, err := config.NewRedisClient()
	if err != nil {
		if cfg.RequireRedis {
			log.Fatal("redis unavailable", zap.Error(err))
		}
		log.Warn("redis unavailable, listings uncached and rate limits per process", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	store := repository.NewStore(db)
	policy := service.PolicyFromConfig(cfg, cacheCfg)
	opts := []service.Option{}
	if c := cache.New(cacheCfg, rdb, log); c != nil {
		opts = append(opts, service.WithCache(c))
	}
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer pub.Close()
		opts = append(opts, service.WithNotifier(pub))
	} else {
		log.Info("RABBITMQ_URL not set, promotion notices disabled")
	}
	svc := service.NewReservationService(store, policy, log, opts...)
	grid := service.NewGridMaintainer(store, policy, log, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A fresh database has no slots at all; make the whole window bookable.
	if _, err := grid.Backfill(ctx); err != nil {
		log.Error("initial grid backfill failed", zap.Error(err))
	}
	if cfg.GridAutoMaintain {
		go grid.Run(ctx, 24*time.Hour)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterReservations(e, handler.NewSlotHandler(svc, log), middleware.NewTokenBucket(rlCfg, rdb, log))
	router.RegisterAdmin(e, handler.NewAdminGridHandler(grid, log, cfg.Location), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
