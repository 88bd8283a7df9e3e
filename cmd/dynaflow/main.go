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

	"github.com/hibiken/asynq"

	"github.com/dynaclean/dynaflow/internal/app"
	"github.com/dynaclean/dynaflow/internal/approval"
	"github.com/dynaclean/dynaflow/internal/dispatch"
	"github.com/dynaclean/dynaflow/internal/observability"
	"github.com/dynaclean/dynaflow/internal/orders"
	"github.com/dynaclean/dynaflow/internal/otp"
	"github.com/dynaclean/dynaflow/internal/platform/cache"
	"github.com/dynaclean/dynaflow/internal/platform/db"
	"github.com/dynaclean/dynaflow/internal/rbac"
	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/internal/stock"
	"github.com/dynaclean/dynaflow/jobs"
	"github.com/dynaclean/dynaflow/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	migrator, err := db.NewMigrator(migrations.FS, cfg.PGDSN, logger, false)
	if err != nil {
		logger.Error("init migrations", slog.Any("error", err))
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("close migrator", slog.Any("error", err))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens, err := shared.NewTokenVerifier(shared.TokenConfig{
		Secret:    cfg.JWTSecret,
		Algorithm: cfg.JWTAlgorithm,
		Issuer:    cfg.JWTIssuer,
		TTL:       cfg.JWTTTL,
	})
	if err != nil {
		logger.Error("init token verifier", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)

	rbacService := rbac.NewService(rbac.DefaultGrants(), cfg.AdminRoles)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	stockService := stock.NewService(stock.NewRepository(dbpool), auditLogger, stock.ServiceConfig{
		Zones:   cfg.StockZones,
		Metrics: metrics,
		Logger:  logger,
	})
	dispatchService := dispatch.NewService(dispatch.NewRepository(dbpool), auditLogger, cfg.DispatchGodowns, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	codes := otp.NewStore(redisClient, otp.Config{TTL: cfg.OTPTTL})
	ordersService := orders.NewService(orders.NewRepository(dbpool), auditLogger, orders.Dependencies{
		Zones:    stockService,
		Dispatch: dispatchService,
		Codes:    codes,
		Notifier: jobClient,
		Metrics:  metrics,
	}, orders.ServiceConfig{
		AdminRoles:          cfg.AdminRoles,
		DeliveryOTPRequired: cfg.DeliveryOTPRequired,
		Logger:              logger,
	})
	gate := approval.NewGate(ordersService, approvalRecorder, cfg.ApprovalRoles, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		OrdersHandler:      orders.NewHandler(logger, ordersService, rbacMiddleware),
		ApprovalHandler:    approval.NewHandler(logger, gate, rbacMiddleware),
		DispatchHandler:    dispatch.NewHandler(logger, dispatchService, rbacMiddleware),
		StockHandler:       stock.NewHandler(logger, stockService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
