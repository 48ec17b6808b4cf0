package main

import (
	"database/sql"
	"log/slog"

	"go.opentelemetry.io/otel"

	"pims/internal/custody"
	filemetrics "pims/internal/file/metrics"
	fileservice "pims/internal/file/service"
	accessstore "pims/internal/file/store/access"
	activationstore "pims/internal/file/store/activation"
	filestore "pims/internal/file/store/file"
	"pims/internal/notification"
	notificationhandler "pims/internal/notification/handler"
	"pims/internal/numbering"
	numberstore "pims/internal/numbering/store"
	"pims/internal/platform/config"
	"pims/internal/platform/postgres"
	"pims/internal/platform/redis"
	workflowmetrics "pims/internal/workflow/metrics"
	workflowservice "pims/internal/workflow/service"
	templatestore "pims/internal/workflow/store/template"
	workflowstore "pims/internal/workflow/store/workflow"
	audit "pims/pkg/platform/audit"
	auditmemory "pims/pkg/platform/audit/store/memory"
	auditpostgres "pims/pkg/platform/audit/store/postgres"
	"pims/pkg/platform/tx"
)

// app holds the wired services the HTTP layer is built on.
type app struct {
	persistence string
	files       *fileservice.Service
	workflows   *workflowservice.Service
	custody     *custody.Tracker
	inbox       notificationhandler.Inbox
}

type storeSet struct {
	files       fileservice.FileStore
	activations fileservice.ActivationStore
	access      fileservice.AccessStore
	counters    numbering.CounterStore
	workflows   workflowservice.WorkflowStore
	templates   workflowservice.TemplateStore
	audit       audit.Store
	tx          fileservice.StoreTx
}

func memoryStores() storeSet {
	return storeSet{
		files:       filestore.NewInMemory(),
		activations: activationstore.NewInMemory(),
		access:      accessstore.NewInMemory(),
		counters:    numberstore.NewInMemory(),
		workflows:   workflowstore.NewInMemory(),
		templates:   templatestore.NewInMemory(),
		audit:       auditmemory.NewInMemoryStore(),
		tx:          tx.NewLockRunner(),
	}
}

func postgresStores(db *sql.DB) storeSet {
	return storeSet{
		files:       filestore.NewPostgres(db),
		activations: activationstore.NewPostgres(db),
		access:      accessstore.NewPostgres(db),
		counters:    numberstore.NewPostgres(db),
		workflows:   workflowstore.NewPostgres(db),
		templates:   templatestore.NewPostgres(db),
		audit:       auditpostgres.New(db),
		tx:          postgres.NewTxRunner(db),
	}
}

// buildApp wires Postgres stores when db is set and in-memory stores otherwise.
// Notifications go to the Redis inbox when a client is configured and to the
// log otherwise.
func buildApp(cfg config.Config, log *slog.Logger, db *sql.DB, redisClient *redis.Client) (*app, error) {
	stores, persistence := memoryStores(), "memory"
	if db != nil {
		stores, persistence = postgresStores(db), "postgres"
	}

	var sink notification.Sink = notification.NewLogSink(log)
	var inbox notificationhandler.Inbox
	if redisClient != nil {
		redisSink := notification.NewRedisSink(redisClient.Client, cfg.Redis.Channel, cfg.Redis.InboxLimit)
		sink, inbox = redisSink, redisSink
	}
	notifier := notification.NewNotifier(sink, notification.WithLogger(log))
	recorder := audit.NewRecorder(stores.audit)

	numbers := numbering.New(stores.counters,
		numbering.WithPrefix(cfg.Registry.NumberPrefix),
		numbering.WithSerialWidth(cfg.Registry.SerialWidth),
	)

	files, err := fileservice.New(
		fileservice.Stores{
			Files:       stores.files,
			Activations: stores.activations,
			Access:      stores.access,
		},
		numbers,
		recorder,
		stores.tx,
		fileservice.WithLogger(log),
		fileservice.WithNotifier(notifier),
		fileservice.WithMetrics(filemetrics.New()),
		fileservice.WithTracer(otel.Tracer("pims/internal/file")),
		fileservice.WithAccessDuration(cfg.Registry.AccessDuration),
	)
	if err != nil {
		return nil, err
	}

	workflows, err := workflowservice.New(stores.workflows, stores.templates, recorder, stores.tx,
		workflowservice.WithLogger(log),
		workflowservice.WithNotifier(notifier),
		workflowservice.WithMetrics(workflowmetrics.New()),
		workflowservice.WithFileLookup(stores.files),
	)
	if err != nil {
		return nil, err
	}

	tracker, err := custody.New(stores.audit, stores.files,
		custody.WithLogger(log),
		custody.WithNotifier(notifier),
		custody.WithRecorder(recorder),
		custody.WithThreshold(cfg.Registry.OverdueThresholdDays),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		persistence: persistence,
		files:       files,
		workflows:   workflows,
		custody:     tracker,
		inbox:       inbox,
	}, nil
}
