package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/craftflow-backend/internal/data/db"
	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		HTTPAddr:          "127.0.0.1:0",
		TrustUserIDHeader: true,
		ShutdownTimeout:   5 * time.Second,
		WorkerConcurrency: 2,
		DeferredTimeout:   time.Second,
		JobRetention:      time.Hour,
		SnapshotRetention: 2 * time.Hour,
		PruneInterval:     time.Minute,
		StreamHeartbeat:   time.Second,
		DB: db.Config{
			Driver: db.DriverSQLite,
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		},
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 150*time.Second, cfg.ModelDelay)
	assert.Equal(t, db.DriverSQLite, cfg.DB.Driver)

	t.Setenv("WORKER_CONCURRENCY", "0")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestConfigRequiresIdentitySource(t *testing.T) {
	cfg := testConfig(t)
	cfg.TrustUserIDHeader = false
	assert.Error(t, cfg.Validate())
	cfg.JWTSecret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.DB.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}

func TestRunOnceWithPlaceholders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var buf bytes.Buffer
	events := NewEventWriter(&buf)
	a, err := New(ctx, logger.NewNop(), testConfig(t), WithEventObserver(events))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	job, err := a.RunOnce(ctx, RunRequest{
		UserID: 1,
		Prompt: "a ceramic teapot",
		Turns:  []string{"user: something for my kitchen", "assistant: what material?"},
	}, events)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, "a ceramic teapot", job.Result["originalPrompt"])

	events.mu.Lock()
	var seen []workflow.EventType
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var ev workflow.ProgressEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		seen = append(seen, ev.EventType)
	}
	events.mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, workflow.EventWorkflowStarted, seen[0])
	assert.Equal(t, workflow.EventWorkflowCompleted, seen[len(seen)-1])

	nodeStarts := 0
	for _, et := range seen {
		if et == workflow.EventNodeStarted {
			nodeStarts++
		}
	}
	assert.Equal(t, len(workflow.DefaultDefinition().Nodes), nodeStarts)

	snap, err := a.Repos.JobRun.LoadJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, snap.Status)

	turns, err := a.Repos.ChatTurn.Recent(dbctx.Of(ctx), job.ProjectID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
}

func TestRunOnceRejectsForeignProject(t *testing.T) {
	ctx := context.Background()
	events := NewEventWriter(&bytes.Buffer{})
	a, err := New(ctx, logger.NewNop(), testConfig(t), WithEventObserver(events))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = a.RunOnce(ctx, RunRequest{UserID: 1, ProjectID: 404, Prompt: "x"}, events)
	assert.Error(t, err)
	_, err = a.RunOnce(ctx, RunRequest{UserID: 1, Prompt: "  "}, events)
	assert.Error(t, err)
}

func TestParseTurns(t *testing.T) {
	turns := parseTurns(3, 1, []string{"User: hi", "no role here", "assistant:   "})
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, "user", turns[1].Role)
	assert.Equal(t, "no role here", turns[1].Content)
	assert.True(t, turns[1].CreatedAt.After(turns[0].CreatedAt))
}
