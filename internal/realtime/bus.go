package realtime

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

const (
	DefaultBufferSize    = 64
	DefaultSendTimeout   = 2 * time.Second
	DefaultGraceDelay    = 3 * time.Second
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 5 * time.Minute
	DefaultHeartbeat     = 15 * time.Second
)

const projectKeyPrefix = "project-"

// ProjectKey is the registration key used before a job id is known.
func ProjectKey(projectID int64) string {
	return projectKeyPrefix + strconv.FormatInt(projectID, 10)
}

type Option func(*ProgressBus)

func WithBufferSize(n int) Option {
	return func(b *ProgressBus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(b *ProgressBus) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

func WithGraceDelay(d time.Duration) Option {
	return func(b *ProgressBus) {
		if d >= 0 {
			b.graceDelay = d
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(b *ProgressBus) {
		if d > 0 {
			b.ttl = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(b *ProgressBus) {
		if d > 0 {
			b.sweepInterval = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(b *ProgressBus) { b.now = now }
}

/*
ProgressBus routes ProgressEvents to subscriber connections.

A subscriber usually registers under ProjectKey before its job exists. The
first event for that project carrying a job id re-keys the connection under
the job id, so later events for the same job resolve directly and a second
job on the same project does not steal the stream.
*/
type ProgressBus struct {
	log           *logger.Logger
	bufferSize    int
	sendTimeout   time.Duration
	graceDelay    time.Duration
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu    sync.Mutex
	conns map[string]*Connection

	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewProgressBus(log *logger.Logger, opts ...Option) *ProgressBus {
	b := &ProgressBus{
		log:           log.With("component", "ProgressBus"),
		bufferSize:    DefaultBufferSize,
		sendTimeout:   DefaultSendTimeout,
		graceDelay:    DefaultGraceDelay,
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		conns:         make(map[string]*Connection),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Connect registers a new connection under key, closing whatever was there,
// and queues the connection-established event.
func (b *ProgressBus) Connect(key string, projectID, userID int64) (*Connection, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("connection key required")
	}
	conn := newConnection(key, projectID, userID, b.bufferSize, b.now())

	b.mu.Lock()
	old := b.conns[key]
	if old != nil {
		b.unlinkLocked(old)
	}
	b.conns[key] = conn
	b.mu.Unlock()

	if old != nil {
		old.close()
		b.log.Info("Replaced existing progress connection", "key", key, "old_id", old.ID, "new_id", conn.ID)
	}

	jobID := ""
	if !strings.HasPrefix(key, projectKeyPrefix) {
		jobID = key
	}
	if err := conn.enqueue(workflow.ConnectionEstablished(jobID, projectID), b.sendTimeout); err != nil {
		b.Release(conn)
		return nil, err
	}
	b.log.Debug("Progress connection registered", "key", key, "conn_id", conn.ID, "user_id", userID)
	return conn, nil
}

// Publish delivers ev to the connection registered for its job, or for its
// project. It reports whether a connection accepted the event.
func (b *ProgressBus) Publish(ev workflow.ProgressEvent) bool {
	return b.publish(ev, true)
}

func (b *ProgressBus) publish(ev workflow.ProgressEvent, warnOnMiss bool) bool {
	conn := b.resolve(ev)
	if conn == nil {
		b.dropped.Add(1)
		if warnOnMiss {
			b.log.Warn("No progress connection; dropping event", "job_id", ev.JobID, "project_id", ev.ImageProjectID, "event", string(ev.EventType))
		}
		return false
	}

	if err := conn.enqueue(ev, b.sendTimeout); err != nil {
		b.failed.Add(1)
		b.log.Warn("Progress send failed; closing connection", "conn_id", conn.ID, "job_id", ev.JobID, "error", err)
		b.Release(conn)
		return false
	}

	if ev.IsTerminal() {
		time.AfterFunc(b.graceDelay, func() { b.Release(conn) })
	}
	return true
}

func (b *ProgressBus) resolve(ev workflow.ProgressEvent) *Connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.JobID != "" {
		if c, ok := b.conns[ev.JobID]; ok {
			return c
		}
	}
	if ev.ImageProjectID == 0 {
		return nil
	}
	pk := ProjectKey(ev.ImageProjectID)
	c, ok := b.conns[pk]
	if !ok {
		return nil
	}
	if ev.JobID != "" {
		b.conns[ev.JobID] = c
		delete(b.conns, pk)
	}
	return c
}

// Close closes the connection registered under key and every alias of it.
func (b *ProgressBus) Close(key string) bool {
	b.mu.Lock()
	conn, ok := b.conns[key]
	if ok {
		b.unlinkLocked(conn)
	}
	b.mu.Unlock()
	if ok {
		conn.close()
	}
	return ok
}

// Release unregisters conn and closes it. A newer connection that replaced
// it under the same key is left alone.
func (b *ProgressBus) Release(conn *Connection) {
	if conn == nil {
		return
	}
	b.mu.Lock()
	b.unlinkLocked(conn)
	b.mu.Unlock()
	conn.close()
}

func (b *ProgressBus) unlinkLocked(conn *Connection) {
	for k, c := range b.conns {
		if c == conn {
			delete(b.conns, k)
		}
	}
}

// SweepExpired closes connections older than the TTL.
func (b *ProgressBus) SweepExpired(now time.Time) int {
	b.mu.Lock()
	var expired []*Connection
	seen := map[*Connection]bool{}
	for _, c := range b.conns {
		if seen[c] {
			continue
		}
		seen[c] = true
		if now.Sub(c.CreatedAt) > b.ttl {
			expired = append(expired, c)
		}
	}
	for _, c := range expired {
		b.unlinkLocked(c)
	}
	b.mu.Unlock()

	for _, c := range expired {
		c.close()
	}
	if len(expired) > 0 {
		b.log.Info("Swept expired progress connections", "count", len(expired))
	}
	return len(expired)
}

// Start runs the TTL sweep until ctx is done.
func (b *ProgressBus) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(b.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.SweepExpired(b.now())
			}
		}
	}()
}

// Shutdown closes every connection so open streams drain and return.
func (b *ProgressBus) Shutdown() {
	b.mu.Lock()
	all := make([]*Connection, 0, len(b.conns))
	for k, c := range b.conns {
		all = append(all, c)
		delete(b.conns, k)
	}
	b.mu.Unlock()
	for _, c := range all {
		c.close()
	}
}

type Stats struct {
	TotalConnections int      `json:"totalConnections"`
	Keys             []string `json:"keys"`
	Aliases          int      `json:"aliases"`
	Dropped          uint64   `json:"droppedEvents"`
	SendFailures     uint64   `json:"sendFailures"`
}

func (b *ProgressBus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{Keys: make([]string, 0, len(b.conns))}
	unique := map[*Connection]bool{}
	for k, c := range b.conns {
		st.Keys = append(st.Keys, k)
		unique[c] = true
		if k != c.Key {
			st.Aliases++
		}
	}
	sort.Strings(st.Keys)
	st.TotalConnections = len(unique)
	st.Dropped = b.dropped.Load()
	st.SendFailures = b.failed.Load()
	return st
}

func (b *ProgressBus) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conns[key]
	return ok
}

func (b *ProgressBus) ActiveCount() int {
	return b.Stats().TotalConnections
}
