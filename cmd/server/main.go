package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/config"
	"github.com/eventflow/eventflow-api/internal/database"
	"github.com/eventflow/eventflow-api/internal/handler"
	"github.com/eventflow/eventflow-api/internal/logger"
	"github.com/eventflow/eventflow-api/internal/middleware"
	"github.com/eventflow/eventflow-api/internal/notify"
	"github.com/eventflow/eventflow-api/internal/payment"
	"github.com/eventflow/eventflow-api/internal/queue"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/router"
	"github.com/eventflow/eventflow-api/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.IsDev())

	db, err := database.Open(database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("migrate schema")
		}
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	payCfg := config.LoadPaymentConfig()
	gateway, err := payment.NewGateway(payCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("payment gateway")
	}

	mailCfg := config.LoadMailConfig()
	notifier := queue.NewNotifier(cfg.BookingLogDir, mailCfg.AppURL, notify.NewMailer(mailCfg))

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	var workers sync.WaitGroup

	brokerCfg := config.LoadBrokerConfig()
	var publisher queue.Publisher
	if brokerCfg.URL != "" {
		publisher = queue.NewAMQPPublisher(brokerCfg.URL, brokerCfg.Exchange)
		if brokerCfg.ConsumerEnabled {
			consumer := queue.NewConsumer(brokerCfg, notifier)
			workers.Add(1)
			go func() {
				defer workers.Done()
				if err := consumer.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("notification consumer stopped")
				}
			}()
		}
	} else {
		log.Warn().Msg("RABBITMQ_URL not set, notifications are delivered inline")
		publisher = queue.InlinePublisher{Handler: notifier}
	}
	defer publisher.Close()

	// Repositories
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	resets := repository.NewResetRepo(db)
	events := repository.NewEventRepo(db)
	tickets := repository.NewTicketRepo(db)
	bookings := repository.NewBookingRepo(db)
	payments := repository.NewPaymentRepo(db)

	cacheCfg := config.LoadCacheConfig()
	purge := func(ctx context.Context) error {
		return middleware.PurgeCache(ctx, rdb, cacheCfg.Prefix)
	}

	accountSvc := service.NewAccountService(users, tokens, resets, publisher, service.AccountOptions{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		ResetTTLMin:    cfg.ResetTTLMin,
		BcryptCost:     cfg.BcryptCost,
	})
	catalogSvc := service.NewCatalogService(events, tickets, purge)
	bookingSvc := service.NewBookingService(events, tickets, bookings, payments, gateway, publisher, service.BookingOptions{
		Currency:       payCfg.Currency,
		GatewayTimeout: payCfg.Timeout,
		Purge:          purge,
	})

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(middleware.RequestID())
	e.Use(middleware.AccessLog())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Request-ID"},
	}))

	router.Register(e, router.Deps{
		JWTSecret:     cfg.JWTSecret,
		Auth:          handler.NewAuthHandler(accountSvc),
		Events:        handler.NewEventHandler(catalogSvc),
		Bookings:      handler.NewBookingHandler(bookingSvc),
		Users:         handler.NewUserHandler(accountSvc),
		Health:        handler.NewHealthHandler(db, rdb),
		RDB:           rdb,
		RateLimit:     config.LoadRateLimitConfig(),
		AuthRateLimit: config.LoadAuthRateLimitConfig(),
		Cache:         cacheCfg,
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("payment_provider", gateway.Name()).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	stop()
	workers.Wait()
}
