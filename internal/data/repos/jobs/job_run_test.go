package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/craftflow-backend/internal/data/repos/testutil"
	jobstate "github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
)

func TestJobRunSnapshotRoundTrip(t *testing.T) {
	db := testutil.DB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := jobstate.Job{
		ID:        "job-1",
		UserID:    7,
		ProjectID: 3,
		Prompt:    "a bamboo tea tray",
		Status:    jobstate.StatusRunning,
		Message:   "workflow started",
		Progress:  10,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, repo.SaveJob(ctx, job))

	got, err := repo.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobstate.StatusRunning, got.Status)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.CompletedAt)

	done := created.Add(time.Minute)
	job.Status = jobstate.StatusCompleted
	job.Progress = 100
	job.Result = map[string]any{"enhancedPrompt": "x", "keyPoint": "tea,bamboo"}
	job.UpdatedAt = done
	job.CompletedAt = &done
	require.NoError(t, repo.SaveJob(ctx, job))

	got, err = repo.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobstate.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "tea,bamboo", got.Result["keyPoint"])
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	rows, err := repo.ListByProject(dbctx.Of(ctx), 3, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestJobRunLoadMissing(t *testing.T) {
	repo := NewJobRunRepo(testutil.DB(t), testutil.Logger(t))
	_, err := repo.LoadJob(context.Background(), "nope")
	assert.ErrorIs(t, err, jobstate.ErrNotFound)
}

func TestJobRunDeleteFinishedBefore(t *testing.T) {
	db := testutil.DB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.SaveJob(ctx, jobstate.Job{ID: "old", ProjectID: 1, Status: jobstate.StatusFailed, CreatedAt: old, UpdatedAt: old, CompletedAt: &old}))
	require.NoError(t, repo.SaveJob(ctx, jobstate.Job{ID: "live", ProjectID: 1, Status: jobstate.StatusRunning, CreatedAt: old, UpdatedAt: old}))

	n, err := repo.DeleteFinishedBefore(dbctx.Of(ctx), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.LoadJob(ctx, "live")
	assert.NoError(t, err)
}

func TestJobRunRegistryMirror(t *testing.T) {
	repo := NewJobRunRepo(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()
	reg := jobstate.NewRegistry(testutil.Logger(t), jobstate.WithSnapshotStore(repo))

	job, err := reg.Create(ctx, 7, 3, "paper lantern")
	require.NoError(t, err)
	require.NoError(t, reg.SetStatus(ctx, job.ID, jobstate.StatusRunning, "workflow started", 10))
	applied, err := reg.SetResult(ctx, job.ID, map[string]any{"currentStep": "done"})
	require.NoError(t, err)
	require.True(t, applied)

	stored, err := repo.LoadJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobstate.StatusCompleted, stored.Status)
	assert.Equal(t, "done", stored.Result["currentStep"])
}
