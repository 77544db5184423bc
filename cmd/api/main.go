package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"savings-platform/internal/audit"
	"savings-platform/internal/auth"
	"savings-platform/internal/config"
	"savings-platform/internal/gateway"
	"savings-platform/internal/httpapi"
	"savings-platform/internal/investing"
	"savings-platform/internal/kyc"
	"savings-platform/internal/reporting"
	"savings-platform/internal/settlement"
	"savings-platform/internal/store"
	"savings-platform/internal/webhook"
	"savings-platform/pkg/logger"
	"savings-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional local env file; real deployments inject env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	st := store.NewPostgres(db)

	var gw gateway.Client
	switch cfg.Gateway.Mode {
	case "http":
		gw, err = gateway.NewHTTPClient(gateway.HTTPClientConfig{
			BaseURL:   cfg.Gateway.BaseURL,
			KeyID:     cfg.Gateway.KeyID,
			KeySecret: cfg.Gateway.KeySecret,
			Timeout:   cfg.Gateway.Timeout,
		})
		if err != nil {
			log.Error("gateway init failed", "err", err)
			os.Exit(1)
		}
	default:
		gw = gateway.NewMockClient(cfg.Gateway.KeySecret)
	}
	log.Info("payment gateway configured", "provider", gw.Name())

	// KYC stays an injected collaborator; the static provider is the
	// stand-in until the onboarding service is integrated.
	kycProvider := kyc.NewStaticProvider(nil)

	auditSvc := audit.NewService(audit.NewMemoryRepo())

	settlementSvc := settlement.NewService(st, gw, kycProvider, settlement.Config{
		KeySecret:               cfg.Gateway.KeySecret,
		KycLevel1ThresholdMinor: cfg.KYC.Level1ThresholdMinor,
	})
	investSvc := investing.NewService(st, kycProvider)
	reportingSvc := reporting.NewService(st)
	webhookSvc := webhook.NewService(st, cfg.Gateway.WebhookSecret, auditSvc, rdb)

	h := httpapi.Handlers{
		Auth:       authManager,
		Settlement: settlementSvc,
		Invest:     investSvc,
		Reporting:  reportingSvc,
		Store:      st,
		Audit:      auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, webhookSvc, auth.RequireAccessToken(authManager), httpapi.MoneyOpLimit(rdb))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
