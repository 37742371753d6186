package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"coursebook/cmd/buildCFG"
	"coursebook/internal/api/api"
	"coursebook/internal/gateway"
	"coursebook/internal/mailer"
	"coursebook/internal/outbox"
	"coursebook/internal/rabbit"
	"coursebook/internal/repo"
	"coursebook/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	port := serverCfg.Port

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	if err := db.Master.Ping(); err != nil {
		log.Fatal().Msgf("DB ping failed: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, "migrations/postgres")
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rmq.Close()

	authCfg, err := buildCFG.BuildAuthConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load auth config")
	}
	paymentCfg, err := buildCFG.BuildPaymentConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load payment config")
	}
	bookingCfg := buildCFG.BuildBookingConfig(cfg)
	location, err := time.LoadLocation(bookingCfg.Timezone)
	if err != nil {
		log.Fatal().Msgf("invalid booking timezone %q: %v", bookingCfg.Timezone, err)
	}

	smtpCfg := buildCFG.BuildSMTPConfig(cfg, &log)
	mail := mailer.New(mailer.Config{
		Host:     smtpCfg.Host,
		Port:     smtpCfg.Port,
		Username: smtpCfg.Username,
		Password: smtpCfg.Password,
		From:     smtpCfg.From,
	}, &log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	dispatcher := outbox.NewDispatcher(rmq, repository)
	dispatcher.Start(workerCtx)

	noticeWorker := outbox.NewNoticeWorker(rmq, repository, mail)
	noticeWorker.Start(workerCtx)

	checkout := gateway.NewStripeCheckout(paymentCfg.StripeSecretKey)
	serviceInstance := service.NewService(repository, &log, checkout, service.Config{
		BaseURL:   serverCfg.BaseURL,
		Currency:  paymentCfg.Currency,
		Location:  location,
		JWTSecret: authCfg.JWTSecret,
		TokenTTL:  authCfg.TokenTTL,
	})
	app := api.NewRouters(&api.Routers{
		Service:   serviceInstance,
		JWTSecret: authCfg.JWTSecret,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", port)
		if err := app.Run(":" + port); err != nil {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	cancelWorkers()
	noticeWorker.Stop()
	dispatcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if closer, ok := interface{}(app).(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(shutdownCtx); err != nil {
			log.Error().Msgf("Error shutting down server: %v", err)
		}
	}

	log.Info().Msg("Shutdown complete")
}
