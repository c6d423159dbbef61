package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/microsoft/durabletask-go/backend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Youmanvi/bookingengine/internal/activities"
	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/consistency"
	"github.com/Youmanvi/bookingengine/internal/events"
	orchestration "github.com/Youmanvi/bookingengine/internal/infrastructure/backend"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/lock"
	"github.com/Youmanvi/bookingengine/internal/middleware"
	"github.com/Youmanvi/bookingengine/internal/storage"
	"github.com/Youmanvi/bookingengine/internal/storage/memory"
	"github.com/Youmanvi/bookingengine/internal/storage/sqlite"
	httptransport "github.com/Youmanvi/bookingengine/internal/transport/http"
	"github.com/Youmanvi/bookingengine/internal/workflows"
)

const cascadeRetryBackoff = 30 * time.Second

type app struct {
	cfg    *config.Config
	log    *observability.Logger
	tracer *sdktrace.TracerProvider
	relay  *events.Relay
	worker backend.TaskHubWorker
	server *http.Server
	// metrics is nil when metrics are disabled
	metrics *http.Server
	// closers run in reverse order on Stop
	closers []func() error
}

// newApp assembles every engine component from cfg. Components opened before
// a failure are closed again.
func newApp(ctx context.Context, cfg *config.Config, log *observability.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.tracer, err = observability.InitializeTracing(ctx, &cfg.Observability, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if cfg.Storage.Driver == "sqlite" {
		if err = ensureDirs(cfg.Storage.ResourcesFile, cfg.Storage.BookingsFile, cfg.Storage.AuditFile, cfg.Storage.OutboxFile); err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	resources, bookings, err := a.openStores()
	if err != nil {
		return nil, err
	}
	auditRepo, err := a.openAudit(ctx)
	if err != nil {
		return nil, err
	}
	outbox, err := a.openOutbox()
	if err != nil {
		return nil, err
	}
	publisher, err := a.openPublisher()
	if err != nil {
		return nil, err
	}
	locker := a.openLocker()

	deps := consistency.Deps{
		Resources:   resources,
		Bookings:    bookings,
		Locker:      locker,
		Audit:       auditRepo,
		Outbox:      outbox,
		Logger:      log,
		Metrics:     metrics,
		Tracer:      observability.GetTracer("consistency"),
		Policies:    &cfg.Engine,
		RecordRetry: middleware.DefaultRetryPolicy(cfg.Engine.RecordRetryAttempts),
	}

	var registryDeps *activities.ActivityDeps
	var be backend.Backend
	if cfg.Engine.CascadeRetryEnabled {
		be, err = orchestration.NewBackend(&cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("failed to create orchestration backend: %w", err)
		}
		client := backend.NewTaskHubClient(be)
		deps.CascadeRetry = workflows.NewCascadeRetryScheduler(client, cfg.Engine.CascadeRetryMaxAttempts, cascadeRetryBackoff)
		registryDeps = &activities.ActivityDeps{
			Logger:          log,
			Metrics:         metrics,
			RetryPolicy:     middleware.DefaultRetryPolicy(cfg.Engine.RecordRetryAttempts),
			TimeoutDuration: cfg.Engine.StepTimeout,
		}
	}

	svc := consistency.NewService(deps)

	if registryDeps != nil {
		registryDeps.Target = svc
		a.worker = workflows.NewTaskHubWorker(be, workflows.NewWorkflowRegistry(registryDeps), backend.DefaultLogger())
	}

	a.relay = events.NewRelay(log, metrics, outbox, publisher, cfg.Events)

	router := httptransport.NewRouter(httptransport.NewHandler(svc, log), cfg.App.Timeout)
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
		a.metrics = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

func ensureDirs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return nil
}

func (a *app) openStores() (storage.ResourceStore, storage.BookingStore, error) {
	switch a.cfg.Storage.Driver {
	case "memory":
		return memory.NewResourceStore(), memory.NewBookingStore(), nil
	case "sqlite":
		resources, err := sqlite.NewResourceStore(a.cfg.Storage.ResourcesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open resources store: %w", err)
		}
		a.closers = append(a.closers, resources.Close)

		bookings, err := sqlite.NewBookingStore(a.cfg.Storage.BookingsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bookings store: %w", err)
		}
		a.closers = append(a.closers, bookings.Close)
		return resources, bookings, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *app) openAudit(ctx context.Context) (audit.Repository, error) {
	if a.cfg.Storage.Driver == "memory" {
		return audit.NewMemoryRepository(), nil
	}

	switch a.cfg.Storage.AuditDriver {
	case "postgres":
		repo, err := audit.NewPostgresRepository(ctx, a.cfg.Storage.AuditDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect audit database: %w", err)
		}
		a.closers = append(a.closers, func() error {
			repo.Close()
			return nil
		})
		return repo, nil
	case "sqlite":
		repo, err := audit.NewSQLiteRepository(a.cfg.Storage.AuditFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", a.cfg.Storage.AuditDriver)
	}
}

func (a *app) openOutbox() (events.Outbox, error) {
	if a.cfg.Storage.Driver == "memory" {
		return events.NewMemoryOutbox(), nil
	}

	outbox, err := events.NewSQLiteOutbox(a.cfg.Storage.OutboxFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}
	a.closers = append(a.closers, outbox.Close)
	return outbox, nil
}

func (a *app) openPublisher() (events.Publisher, error) {
	switch a.cfg.Events.Transport {
	case "kafka":
		p := events.NewKafkaPublisher(a.cfg.Events.KafkaBrokers, a.cfg.Events.KafkaTopic)
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "amqp":
		p, err := events.NewAMQPPublisher(a.cfg.Events.AMQPURL, a.cfg.Events.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event broker: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "log":
		return events.NewLogPublisher(a.log), nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", a.cfg.Events.Transport)
	}
}

func (a *app) openLocker() lock.Locker {
	if a.cfg.Lock.Driver == "redis" {
		l := lock.NewRedisLocker(a.cfg.Lock.RedisAddr, a.cfg.Lock.TTL, a.log)
		a.closers = append(a.closers, l.Stop)
		return l
	}
	return lock.NewKeyedMutex()
}

// Run starts the background components and the listeners. Listener failures
// are logged; Run returns once everything has been started.
func (a *app) Run(ctx context.Context) error {
	if a.worker != nil {
		if err := a.worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start orchestration worker: %w", err)
		}
	}

	a.relay.Start(ctx)

	go a.serve("http", a.server)
	if a.metrics != nil {
		go a.serve("metrics", a.metrics)
	}
	return nil
}

func (a *app) serve(name string, srv *http.Server) {
	log := a.log.WithOperation("engine.serve")
	log.Info().Str("server", name).Str("addr", srv.Addr).Msg("listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("server", name).Msg("server failed")
	}
}

// Stop drains the listeners first, then the relay and the worker, then closes storage
func (a *app) Stop(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}

	a.relay.Stop()

	if a.worker != nil {
		if err := a.worker.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestration worker: %w", err))
		}
	}

	if err := observability.ShutdownTracing(ctx, a.tracer); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
