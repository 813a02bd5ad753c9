package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/app"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/catalog"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/employees"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/observability"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/permissions"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/cache"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/db"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
	"github.com/hieuvqhe/SEP490-G163-sub001/jobs"
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

	logger := app.NewLogger(cfg, "console")

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPoolSize)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	cat, err := catalog.Default()
	if err != nil {
		logger.Error("load permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	permissionRepo := permissions.NewRepository(dbpool)
	snapshots := permissions.NewSnapshotCache(redisClient, permissionRepo, cfg.SnapshotTTL)
	drafts := permissions.NewDraftStore(redisClient, cfg.DraftTTL)

	employeeRepo := employees.NewRepository(dbpool)
	assignmentRepo := assignments.NewRepository(dbpool)
	assignmentService := assignments.NewService(assignmentRepo, employeeRepo, auditLogger, logger)
	assignmentService.SetInvalidator(snapshots)
	assignmentService.SetMetrics(metrics)

	submitter := permissions.NewSubmitter(permissionRepo, auditLogger, logger)
	submitter.SetInvalidator(snapshots)
	submitter.SetMetrics(metrics)
	permissionService := permissions.NewService(cat, assignmentRepo, snapshots, drafts, submitter, logger)

	employeeService := employees.NewService(employeeRepo, assignmentService, auditLogger, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	assignmentHandler := assignments.NewHandler(logger, assignmentService)
	assignmentHandler.SetIdempotency(shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		CatalogHandler:     catalog.NewHandler(cat),
		AssignmentsHandler: assignmentHandler,
		PermissionsHandler: permissions.NewHandler(logger, permissionService, snapshots),
		EmployeesHandler:   employees.NewHandler(logger, employeeService),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("console listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
