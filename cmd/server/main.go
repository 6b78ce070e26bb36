package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gymvietai/payment/internal/config"
	"github.com/gymvietai/payment/internal/handler"
	"github.com/gymvietai/payment/internal/logger"
	"github.com/gymvietai/payment/internal/notify"
	"github.com/gymvietai/payment/internal/repository"
	"github.com/gymvietai/payment/internal/server"
	"github.com/gymvietai/payment/internal/service"
	"github.com/gymvietai/payment/pkg/payment"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("payment service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize databases
	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := repository.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	authDB := db
	if cfg.AuthDatabaseURL != cfg.DatabaseURL {
		if authDB, err = repository.NewDB(ctx, cfg.AuthDatabaseURL); err != nil {
			return fmt.Errorf("auth database: %w", err)
		}
		defer authDB.Close()
	}
	zl.Info("databases connected & migrated")

	gateway, err := payment.NewGateway(cfg.VNPay)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	planRepo := repository.NewPlanRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	userRepo := repository.NewUserRepository(authDB)

	// Fulfillment
	dispatcherOpts := []notify.DispatcherOption{
		notify.WithPlans(planRepo),
		notify.WithUsers(userRepo),
		notify.WithSubscriptions(userRepo),
	}
	if cfg.AuthServiceURL != "" {
		dispatcherOpts = append(dispatcherOpts, notify.WithRoleUpgrader(notify.NewAuthClient(cfg.AuthServiceURL, cfg.DownstreamTimeout)))
	} else {
		zl.Warn("AUTH_SERVICE_URL not set, role upgrades disabled")
	}
	if cfg.SMTP.Enabled() {
		dispatcherOpts = append(dispatcherOpts, notify.WithMailer(notify.NewSMTPMailer(notify.MailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Pass:     cfg.SMTP.Pass,
			FromName: cfg.SMTP.FromName,
		})))
	} else {
		zl.Warn("SMTP credentials not set, payment emails disabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				zl.Warn("kafka producer close failed", zap.Error(err))
			}
		}()
		dispatcherOpts = append(dispatcherOpts, notify.WithEvents(publisher))
	}
	dispatcher := notify.NewDispatcher(zl, cfg.DownstreamTimeout, dispatcherOpts...)

	// Initialize services
	verifier, err := service.NewTokenVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}
	orderSvc := service.NewOrderService(planRepo, orderRepo, userRepo, gateway, zl)
	callbackSvc := service.NewCallbackService(orderSvc, gateway.Signer(), dispatcher, zl, cfg.ReturnAdvisory)

	router := server.NewRouter(ctx, server.Handlers{
		Health:   handler.NewHealthHandler(db, authDB),
		Plans:    handler.NewPlansHandler(orderSvc),
		Payment:  handler.NewPaymentHandler(orderSvc),
		Callback: handler.NewCallbackHandler(callbackSvc, cfg.FrontendURL),
		Admin:    handler.NewAdminHandler(orderSvc),
	}, server.Options{
		CORSOrigins: cfg.CORSOrigins,
		Verifier:    verifier,
		Logger:      zl,
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("payment service listening", zap.String("addr", addr), zap.Bool("return_advisory", cfg.ReturnAdvisory))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		zl.Warn("fulfillment tasks still running at exit", zap.Error(err))
	}
	return nil
}
