package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"validhub/internal/config"
	"validhub/internal/db"
	"validhub/internal/handlers"
	"validhub/internal/logger"
	"validhub/internal/processor"
	"validhub/internal/services"
	"validhub/internal/store"
	"validhub/internal/websocket"
	"validhub/internal/workers"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	tests := store.NewTestRequestStore(database)
	submissions := store.NewSubmissionStore(database)
	ledger := store.NewLedgerStore(database)
	orders := store.NewOrderStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	checkout := processor.New(cfg.ProcessorURL, cfg.ProcessorSecretKey, cfg.SiteURL, cfg.ProcessorTimeout)
	engine := services.NewLedgerService(txRunner, accounts, tests, submissions, ledger, audit, hub)
	payments := services.NewPaymentService(txRunner, orders, ledger, engine, checkout, audit, hub)

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := workers.NewPaymentSweeper(orders, payments, cfg.SweepInterval)
	go sweeper.Run(sweeperCtx)

	handler := handlers.New(txRunner, cfg, users, accounts, tests, submissions, ledger, orders, admin, audit, engine, payments, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("validhub API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Fatal("shutdown error", zap.Error(err))
	}
}
