package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/craftflow-backend/internal/data/db"
	apphttp "github.com/yungbote/craftflow-backend/internal/http"
	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/jobs/supervisor"
	"github.com/yungbote/craftflow-backend/internal/observability"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/realtime"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

type App struct {
	Log        *logger.Logger
	Cfg        Config
	DB         *db.Service
	Repos      Repos
	Clients    Clients
	Realtime   Realtime
	Registry   *jobs.Registry
	Supervisor *supervisor.Supervisor
	Metrics    *observability.Metrics
	Server     *apphttp.Server

	otelShutdown func(context.Context) error
}

type Option func(*options)

type options struct {
	observers []workflow.Emitter
}

// WithEventObserver receives every progress event in addition to the bus.
func WithEventObserver(e workflow.Emitter) Option {
	return func(o *options) {
		if e != nil {
			o.observers = append(o.observers, e)
		}
	}
}

func New(ctx context.Context, log *logger.Logger, cfg Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	a.Metrics = observability.Init(log, cfg.MetricsEnabled)

	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = dbs
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		a.Close()
		return nil, err
	}
	a.Repos = wireRepos(dbs.DB(), log)
	a.Registry = jobs.NewRegistry(log, jobs.WithSnapshotStore(a.Repos.JobRun))

	if a.Realtime, err = wireRealtime(ctx, log, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.Clients, err = wireClients(ctx, log, cfg); err != nil {
		a.Close()
		return nil, err
	}

	pipeline, err := wirePipeline(log, cfg, wireStages(log, cfg, a.Clients, a.Repos))
	if err != nil {
		a.Close()
		return nil, err
	}
	emitter := a.Realtime.Emitter
	if len(o.observers) > 0 {
		emitter = teeEmitter(append([]workflow.Emitter{emitter}, o.observers...))
	}
	a.Supervisor = supervisor.New(log, a.Registry, pipeline, emitter,
		supervisor.WithConcurrency(cfg.WorkerConcurrency),
		supervisor.WithDeferredTimeout(cfg.DeferredTimeout),
		supervisor.WithObserver(a.Metrics),
		supervisor.WithTracer(otel.Tracer("github.com/yungbote/craftflow-backend/internal/jobs/supervisor")),
	)

	handlers := wireHandlers(log, cfg, dbs.DB(), a.Repos, a.Realtime, a.Supervisor, a.Registry)
	a.Server = wireServer(log, cfg, a.Metrics, handlers)
	return a, nil
}

// Start launches the background loops: the connection sweep, the relay
// forwarder, metric samplers and the job janitor.
func (a *App) Start(ctx context.Context) error {
	a.Realtime.Bus.Start(ctx)
	if a.Realtime.Relay != nil {
		if err := realtime.StartRelay(ctx, a.Realtime.Relay, a.Realtime.Bus); err != nil {
			return fmt.Errorf("start progress relay: %w", err)
		}
	}
	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartDBCollector(ctx, a.Log, a.DB.DB(), observability.DefaultScrapeInterval)
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Realtime.Redis, observability.DefaultScrapeInterval)
		a.Metrics.StartSampler(ctx, observability.DefaultScrapeInterval, a.sample)
	}
	go a.janitor(ctx)
	return nil
}

func (a *App) sample(m *observability.Metrics) {
	st := a.Realtime.Bus.Stats()
	m.ObserveConnections(st.TotalConnections, len(st.Keys), st.Aliases, st.Dropped, st.SendFailures)
	counts := make(map[string]int)
	for status, n := range a.Registry.Counts() {
		counts[status.String()] = n
	}
	m.ObserveJobs(counts)
}

func (a *App) janitor(ctx context.Context) {
	ticker := time.NewTicker(a.Cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := a.Registry.Prune(a.Cfg.JobRetention)
			cutoff := time.Now().Add(-a.Cfg.SnapshotRetention)
			deleted, err := a.Repos.JobRun.DeleteFinishedBefore(dbctx.Of(ctx), cutoff)
			if err != nil {
				a.Log.Warn("Delete old job snapshots failed", "error", err)
			}
			if pruned > 0 || deleted > 0 {
				a.Log.Info("Job janitor pass", "pruned", pruned, "snapshots_deleted", deleted)
			}
		}
	}
}

// Serve runs the HTTP server until ctx is canceled or the server fails, then
// shuts down in dependency order.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	if err := a.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		if err := a.Server.Run(a.Cfg.HTTPAddr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown()
	})
	return g.Wait()
}

// Shutdown lets in-flight runs deliver their terminal events, then closes
// the progress streams so the HTTP server can drain.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()
	a.Log.Info("Shutting down...")

	var errs []error
	if err := a.Supervisor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("supervisor: %w", err))
	}
	a.Realtime.Bus.Shutdown()
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	a.Realtime.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("Close database failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Log.Sync()
}

func teeEmitter(emitters []workflow.Emitter) workflow.Emitter {
	return workflow.EmitterFunc(func(ctx context.Context, ev workflow.ProgressEvent) {
		for _, e := range emitters {
			e.Emit(ctx, ev)
		}
	})
}
