package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/analyzer"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/api"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/committer"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/config"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/db"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/mapper"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/parser"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/pipeline"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/transform"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/validator"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logFormat := "text"
	if cfg.LogJSON {
		logFormat = "json"
	}
	appLog := logger.New(logger.Config{Level: cfg.LogLevel, Format: logFormat})

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	runs := repository.NewImportRunRepository(conn.Pool)
	staging := repository.NewStagingRepository(conn.Pool)
	rules := repository.NewMappingRuleRepository(conn.Pool)
	logs := repository.NewImportLogRepository(conn.Pool)
	production := repository.NewProductionRepository(conn.Pool)

	an := analyzer.New(cfg.Pipeline.MaxFileSizeBytes, appLog)
	pa := parser.New(staging, logs, parser.Config{
		BatchSize:         cfg.Pipeline.ParseBatchSize,
		MemoryThresholdMB: cfg.Pipeline.MemoryThresholdMB,
	}, appLog)
	ma := mapper.New(rules, staging, logs, mapper.Config{
		MinConfidence:  cfg.Pipeline.MinConfidence,
		HighConfidence: cfg.Pipeline.HighConfidence,
	}, appLog)
	va := validator.New(staging, production, logs,
		transform.NewConverter(cfg.Pipeline.BaseCurrency, nil),
		validator.Config{BatchSize: cfg.Pipeline.ValidateBatchSize}, appLog)
	co := committer.New(conn, staging, production, logs, committer.Config{
		BaseCurrency: cfg.Pipeline.BaseCurrency,
	}, appLog)

	stages := pipeline.NewStages(runs, logs, an, pa, ma, va, co, appLog)
	engine := pipeline.NewEngine(runs, logs, stages, pipeline.Config{
		Workers:    cfg.Pipeline.Workers,
		StageDelay: cfg.Pipeline.StageDelay,
	}, appLog)
	engine.Start(ctx)

	handler := api.NewHandler(runs, staging, logs, engine, api.Config{
		UploadDir:              "./uploads",
		DefaultDuplicatePolicy: cfg.Pipeline.DefaultDuplicatePolicy,
		MaxUploadBytes:         cfg.Pipeline.MaxFileSizeBytes,
	}, appLog)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      corsHandler.Handler(handler.Routes()),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLog.Infof("import server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("server forced to shutdown")
	}
	engine.Stop()
}
