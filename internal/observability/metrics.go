package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

const DefaultScrapeInterval = 10 * time.Second

var stageBuckets = []float64{0.05, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics is the in-process Prometheus registry. Every method is safe on a
// nil receiver so disabled metrics need no call-site checks.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	runsStarted      *Counter
	runsFinished     *CounterVec
	runDuration      *HistogramVec
	runsInflight     *Gauge
	stageOutcomes    *CounterVec
	stageDuration    *HistogramVec
	deferredOutcomes *CounterVec

	sseConnections  *GaugeVec
	sseDropped      *Gauge
	sseSendFailures *Gauge
	jobs            *GaugeVec

	dbStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the process-wide registry once. It returns nil when disabled.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func Current() *Metrics {
	return instance
}

// New returns an unshared registry.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("cf_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"cf_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("cf_api_inflight_requests", "In-flight API requests."),

		runsStarted:      NewCounter("cf_workflow_runs_started_total", "Workflow runs that acquired a worker slot."),
		runsFinished:     NewCounterVec("cf_workflow_runs_finished_total", "Workflow runs by terminal status.", []string{"status"}),
		runDuration:      NewHistogramVec("cf_workflow_run_duration_seconds", "Workflow run duration by terminal status.", []string{"status"}, stageBuckets),
		runsInflight:     NewGauge("cf_workflow_runs_inflight", "Workflow runs currently executing."),
		stageOutcomes:    NewCounterVec("cf_workflow_stage_total", "Stage executions by stage/outcome.", []string{"stage", "outcome"}),
		stageDuration:    NewHistogramVec("cf_workflow_stage_duration_seconds", "Stage duration by stage.", []string{"stage"}, stageBuckets),
		deferredOutcomes: NewCounterVec("cf_workflow_deferred_total", "Deferred completions by stage/outcome.", []string{"stage", "outcome"}),

		sseConnections:  NewGaugeVec("cf_progress_connections", "Progress stream registrations by kind.", []string{"kind"}),
		sseDropped:      NewGauge("cf_progress_events_dropped", "Progress events with no live connection (cumulative)."),
		sseSendFailures: NewGauge("cf_progress_send_failures", "Progress deliveries that timed out (cumulative)."),
		jobs:            NewGaugeVec("cf_jobs", "Tracked jobs by status.", []string{"status"}),

		dbStats:   NewGaugeVec("cf_db_pool", "Database pool stats by kind.", []string{"kind"}),
		redisUp:   NewGauge("cf_redis_up", "Redis availability (1=up)."),
		redisPing: NewGauge("cf_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.runsStarted, m.runsFinished, m.runDuration, m.runsInflight,
		m.stageOutcomes, m.stageDuration, m.deferredOutcomes,
		m.sseConnections, m.sseDropped, m.sseSendFailures, m.jobs,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
	m.runsInflight.Inc()
}

func (m *Metrics) RunFinished(status string, dur time.Duration) {
	if m == nil {
		return
	}
	status = strings.ToLower(strings.TrimSpace(status))
	m.runsInflight.Dec()
	m.runsFinished.Inc(status)
	m.runDuration.Observe(dur.Seconds(), status)
}

func (m *Metrics) StageFinished(stage, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageOutcomes.Inc(stage, strings.ToLower(outcome))
	m.stageDuration.Observe(dur.Seconds(), stage)
}

func (m *Metrics) DeferredFinished(stage, outcome string) {
	if m == nil {
		return
	}
	m.deferredOutcomes.Inc(stage, outcome)
}

// ObserveConnections records a progress bus snapshot.
func (m *Metrics) ObserveConnections(connections, keys, aliases int, dropped, sendFailures uint64) {
	if m == nil {
		return
	}
	m.sseConnections.Set(float64(connections), "connections")
	m.sseConnections.Set(float64(keys), "keys")
	m.sseConnections.Set(float64(aliases), "aliases")
	m.sseDropped.Set(float64(dropped))
	m.sseSendFailures.Set(float64(sendFailures))
}

// ObserveJobs records job counts keyed by status name.
func (m *Metrics) ObserveJobs(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.jobs.Set(float64(n), strings.ToLower(status))
	}
}

// StartSampler calls fn every interval until ctx is done.
func (m *Metrics) StartSampler(ctx context.Context, interval time.Duration, fn func(*Metrics)) {
	if m == nil || fn == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultScrapeInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(m)
			}
		}
	}()
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	m.StartSampler(ctx, interval, func(m *Metrics) {
		sqlDB, err := db.DB()
		if err != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
			return
		}
		stats := sqlDB.Stats()
		m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
		m.dbStats.Set(float64(stats.InUse), "in_use")
		m.dbStats.Set(float64(stats.Idle), "idle")
		m.dbStats.Set(float64(stats.WaitCount), "wait_count")
		m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
	})
}

// StartRedisCollector pings the relay's client; the caller owns the client.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	m.StartSampler(ctx, interval, func(m *Metrics) {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			log.Warn("metrics: redis ping failed", "error", err)
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}
