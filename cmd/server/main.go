package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-chat/internal/broadcast"
	"github.com/iliyamo/venue-chat/internal/config"
	"github.com/iliyamo/venue-chat/internal/database"
	"github.com/iliyamo/venue-chat/internal/handler"
	"github.com/iliyamo/venue-chat/internal/keyring"
	"github.com/iliyamo/venue-chat/internal/middleware"
	"github.com/iliyamo/venue-chat/internal/model"
	"github.com/iliyamo/venue-chat/internal/queue"
	"github.com/iliyamo/venue-chat/internal/repository"
	"github.com/iliyamo/venue-chat/internal/router"
	"github.com/iliyamo/venue-chat/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load() // Load environment config

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		logger.Fatal("open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer db.Close()

	keys, err := keyring.New(cfg.Chat.Keys, cfg.Chat.ActiveKey)
	if err != nil {
		logger.Fatal("message keyring", zap.Error(err))
	}

	establishments := repository.NewEstablishmentRepo(db)
	checkins := repository.NewCheckinRepo(db)
	rooms := repository.NewRoomRepo(db)
	grants := repository.NewGrantRepo(db)
	messages := repository.NewMessageRepo(db, keys)

	if cfg.Env == "dev" {
		seedDev(ctx, establishments, logger)
	}

	// Redis is optional: without it the wake relay, rate limiter and
	// statistics cache are all disabled.
	rdb := config.NewRedisClient(logger)
	bc := broadcast.New()
	var notifier service.Notifier = bc
	if rdb != nil {
		defer rdb.Close()
		relay := broadcast.NewRedisRelay(bc, rdb, logger)
		go relay.Run(ctx)
		notifier = relay
	}

	var events queue.Emitter = queue.NopEmitter{}
	if os.Getenv("RABBITMQ_DISABLED") != "true" {
		url := queue.BrokerURL()
		events = queue.NewPublisher(url, logger)
		go queue.NewConsumer(url, logger).Run(ctx)
	}

	checkinSvc := service.NewCheckinService(establishments, checkins, rooms, grants, events, cfg.Chat, logger)
	chatSvc := service.NewChatService(establishments, rooms, grants, messages, notifier, events, cfg.Chat, logger)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Logger())

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger)

	router.RegisterRoutes(e, db)
	router.RegisterEstablishments(e, handler.NewCheckinHandler(checkinSvc, logger), cfg.JWTSecret, limit, cache)
	router.RegisterChat(e, handler.NewChatHandler(chatSvc, logger), cfg.JWTSecret, limit)

	// Long polls hold a request for up to the poll timeout; the write
	// timeout must outlast it.
	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = cfg.Chat.PollTimeout + 15*time.Second

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", cfg.DBDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// answer pending long polls before closing connections
	bc.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.DBDriver == "sqlite" {
		return database.OpenSQLite(ctx, cfg.DBPath)
	}
	return database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// seedDev makes sure a local database has an establishment to check in to.
func seedDev(ctx context.Context, repo *repository.EstablishmentRepo, logger *zap.Logger) {
	if _, err := repo.GetActiveByID(ctx, 1); err == nil {
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Warn("dev seed lookup", zap.Error(err))
		return
	}
	addr := "Av. Paulista, 1578, São Paulo"
	e, err := repo.Create(ctx, model.Establishment{
		Name:      "Demo Bar",
		Latitude:  -23.561414,
		Longitude: -46.655881,
		Address:   &addr,
		Active:    true,
	})
	if err != nil {
		logger.Warn("dev seed", zap.Error(err))
		return
	}
	logger.Info("seeded demo establishment", zap.Uint64("id", e.ID))
}
