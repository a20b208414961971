package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/draftforge/propeller/internal/app/orchestration"
	"github.com/draftforge/propeller/internal/config"
	"github.com/draftforge/propeller/internal/config/fileloader"
	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/internal/infra/eventbus/kafka"
	pipelineStore "github.com/draftforge/propeller/internal/infra/storage/pipeline/postgres"
	"github.com/draftforge/propeller/internal/infra/workers"
	"github.com/draftforge/propeller/pkg/common"
	"github.com/draftforge/propeller/pkg/common/logger"
	"github.com/draftforge/propeller/pkg/common/otel"
)

const serviceType = "orchestrator"

func main() {
	_, _ = maxprocs.Set()

	configPath := flag.String("config", "config.yaml", "path to the orchestrator config file")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("ORCHESTRATOR-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	logg := logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := fileloader.NewFileLoader(*configPath).Load(ctx)
	if err != nil {
		logg.Error(ctx, "failed to load config", "error", err, "path", *configPath)
		os.Exit(1)
	}

	sessionID, err := uuid.Parse(os.Getenv("SESSION_ID"))
	if err != nil {
		logg.Error(ctx, "SESSION_ID environment variable must be a valid UUID", "error", err)
		os.Exit(1)
	}
	projectID, err := uuid.Parse(os.Getenv("PROJECT_ID"))
	if err != nil {
		logg.Error(ctx, "PROJECT_ID environment variable must be a valid UUID", "error", err)
		os.Exit(1)
	}

	prob := 0.1
	if raw := os.Getenv("OTEL_SAMPLING_RATIO"); raw != "" {
		prob, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			logg.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
	}
	tp, telemetryTeardown, err := otel.InitTelemetry(logg, otel.Config{
		ServiceName:      svcName,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability: prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"session.id":       sessionID.String(),
		},
		InsecureExporter: true,
	})
	if err != nil {
		logg.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(svcName)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			logg.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		logg.Error(ctx, "failed to parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConns = 10
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logg.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Postgres.MigrationsPath != "" {
		if err := runMigrations(pool, cfg.Postgres.MigrationsPath); err != nil {
			logg.Error(ctx, "failed to run migrations", "error", err)
			os.Exit(1)
		}
		logg.Info(ctx, "Migrations applied successfully")
	}

	mp := otel.GetMeterProvider()
	metricCollector, err := orchestration.NewOrchestrationMetrics(mp)
	if err != nil {
		logg.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	kafkaCfg := &kafka.Config{
		Brokers:                cfg.Kafka.Brokers,
		DocumentProgressTopic:  cfg.Kafka.DocumentProgressTopic,
		PipelineLifecycleTopic: cfg.Kafka.PipelineLifecycleTopic,
		GroupID:                cfg.Kafka.GroupID,
		ClientID:               svcName,
	}
	eventBus, err := kafka.ConnectWithRetry(kafkaCfg, logg, metricCollector, tracer)
	if err != nil {
		logg.Error(ctx, "failed to connect event bus", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logg.Error(ctx, "Failed to close event bus", "error", err)
		}
	}()

	eventPublisher := kafka.NewDomainEventPublisher(eventBus)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	docWorker := workers.NewDocumentAnalysisClient(httpClient, workerClientConfig(cfg.Workers.DocumentAnalyzer), logg, tracer)
	questionWorker := workers.NewQuestionGenerationClient(httpClient, workerClientConfig(cfg.Workers.QuestionGenerator), logg, tracer)

	timeProvider := pipeline.NewRealTimeProvider()
	store := pipelineStore.NewStateStore(pool, tracer)
	if err := store.CreateSession(ctx, sessionID, projectID); err != nil {
		logg.Error(ctx, "failed to create session", "error", err)
		os.Exit(1)
	}

	session := pipeline.NewSession(sessionID, projectID, timeProvider)
	orchestrator := orchestration.NewOrchestrator(
		cfg.Orchestrator.ToOrchestration(),
		session,
		store,
		docWorker,
		questionWorker,
		eventPublisher,
		metricCollector,
		timeProvider,
		logg,
		tracer,
	)
	defer orchestrator.Stop()

	// Push notifications and polling both feed the orchestrator's single
	// update path.
	err = eventBus.Subscribe(ctx, []events.EventType{pipeline.EventTypeDocumentProgressed},
		func(ctx context.Context, evt events.EventEnvelope) error {
			progressed, ok := evt.Payload.(pipeline.DocumentProgressedEvent)
			if !ok {
				logg.Warn(ctx, "unexpected payload type for document progress event")
				return nil
			}
			return orchestrator.HandleDocumentProgress(ctx, progressed)
		})
	if err != nil {
		logg.Error(ctx, "failed to subscribe to document progress events", "error", err)
		os.Exit(1)
	}

	if err := orchestrator.Run(ctx); err != nil {
		logg.Error(ctx, "failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	logg.Info(ctx, "Orchestrator initialized", "session_id", sessionID, "project_id", projectID)
	ready.Store(true)

	sig := <-sigCh
	logg.Info(ctx, "Received shutdown signal", "signal", sig)
	cancel()
	orchestrator.Stop()
}

func workerClientConfig(cfg config.WorkerConfig) workers.ClientConfig {
	return workers.ClientConfig{
		BaseURL:              cfg.BaseURL,
		RequestsPerSecond:    cfg.RequestsPerSecond,
		Burst:                cfg.Burst,
		ConnectRetries:       cfg.ConnectRetries,
		ConnectRetryInterval: cfg.ConnectRetryInterval,
	}
}

// runMigrations uses golang-migrate to apply all up migrations from the
// configured directory over a connection borrowed from the pool.
func runMigrations(pool *pgxpool.Pool, migrationsPath string) error {
	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
