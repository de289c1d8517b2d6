package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tiketi/config"
	"tiketi/internal/database"
	"tiketi/internal/log"
	"tiketi/internal/repository"
	"tiketi/internal/router"
	"tiketi/internal/service"
	"tiketi/internal/ws"
	"tiketi/pkg/payment"

	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("TIKETI_CONFIG"), "path to YAML config file")
	addr := pflag.String("addr", "", "listen address, overrides server.port")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		baseLogger := log.Base()
		baseLogger.Fatal().Err(err).Msg("load config")
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Service: cfg.Log.Service})
	logger := log.WithComponent("server")

	var db *gorm.DB
	var store service.AttemptStore
	if cfg.Database.DSN != "" {
		db, err = database.Open(context.Background(), &cfg.Database, log.WithComponent("database"))
		if err != nil {
			logger.Fatal().Err(err).Msg("database")
		}
		if err := database.AutoMigrate(db); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		store = repository.NewCheckoutRepository(db)
	} else {
		logger.Warn().Msg("no database configured; checkout history disabled")
	}

	var gw payment.Gateway
	if cfg.Gateway.BaseURL == "stub" {
		logger.Warn().Int("success_after", cfg.Gateway.StubPolls).Msg("using in-process stub payment gateway")
		gw = payment.NewStubGateway(cfg.Gateway.StubPolls)
	} else {
		gw = payment.NewHTTPGateway(payment.Endpoints{
			BaseURL:      cfg.Gateway.BaseURL,
			InitiatePath: cfg.Gateway.InitiatePath,
			StatusPath:   cfg.Gateway.StatusPath,
			StatusParam:  cfg.Gateway.StatusParam,
		}, cfg.Gateway.Timeout, log.WithComponent("gateway"))
	}

	hub := ws.NewHub(log.WithComponent("ws"))
	svc := service.NewCheckoutService(gw, cfg.Checkout, store, hub, log.WithComponent("checkout"))
	engine := router.Setup(cfg, svc, hub)

	listen := ":" + cfg.Server.Port
	if *addr != "" {
		listen = *addr
	}
	srv := &http.Server{
		Addr:         listen,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", listen).Str("gateway", cfg.Gateway.BaseURL).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	svc.Shutdown()
	hub.CloseAll()
	if db != nil {
		if err := database.Close(db); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}
	logger.Info().Msg("server stopped")
}
