package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/craftflow-backend/internal/data/dberr"
	types "github.com/yungbote/craftflow-backend/internal/domain"
	httpH "github.com/yungbote/craftflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/craftflow-backend/internal/http/middleware"
	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/jobs/supervisor"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/realtime"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

const testSecret = "test-secret"

type fakeProjects struct {
	mu         sync.Mutex
	owners     map[int64]int64
	processing []int64
}

func (f *fakeProjects) GetOwned(_ dbctx.Context, id, userID int64) (*types.ImageProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner, ok := f.owners[id]; ok && owner == userID {
		return &types.ImageProject{ID: id, UserID: userID}, nil
	}
	return nil, fmt.Errorf("get owned image project: %w", dberr.ErrNotFound)
}

func (f *fakeProjects) MarkProcessing(_ dbctx.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = append(f.processing, id)
	return nil
}

type fakeSubmitter struct {
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, _, projectID int64, prompt string) (supervisor.Submission, error) {
	if f.err != nil {
		return supervisor.Submission{}, f.err
	}
	return supervisor.Submission{JobID: "job-1", ImageProjectID: projectID, Status: "PENDING", OriginalPrompt: prompt}, nil
}

type fakeJobs map[string]jobs.Job

func (f fakeJobs) Get(_ context.Context, id string) (jobs.Job, error) {
	if j, ok := f[id]; ok {
		return j, nil
	}
	return jobs.Job{}, jobs.ErrNotFound
}

type fixture struct {
	router    *gin.Engine
	projects  *fakeProjects
	submitter *fakeSubmitter
	bus       *realtime.ProgressBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	f := &fixture{
		projects:  &fakeProjects{owners: map[int64]int64{7: 1, 8: 2}},
		submitter: &fakeSubmitter{},
		bus:       realtime.NewProgressBus(log, realtime.WithGraceDelay(10*time.Millisecond)),
	}
	t.Cleanup(f.bus.Shutdown)
	jobReader := fakeJobs{"job-1": {ID: "job-1", UserID: 1, ProjectID: 7, Status: jobs.StatusRunning}}
	f.router = NewRouter(RouterConfig{
		Log:                log,
		IdentityMiddleware: httpMW.NewIdentityMiddleware(log, httpMW.IdentityConfig{JWTSecret: testSecret, TrustUserIDHeader: true}),
		WorkflowHandler:    httpH.NewWorkflowHandler(log, f.projects, f.submitter, jobReader),
		ProgressHandler:    httpH.NewProgressHandler(log, f.bus, f.projects, time.Second),
		HealthHandler:      httpH.NewHealthHandler(nil),
	})
	return f
}

func (f *fixture) do(method, path, body string, user int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user > 0 {
		req.Header.Set("X-User-Id", fmt.Sprint(user))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestExecute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/workflow/execute", `{"projectId":7,"originalPrompt":"a ceramic teapot"}`, 1)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sub supervisor.Submission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, "job-1", sub.JobID)
	assert.Equal(t, int64(7), sub.ImageProjectID)
	assert.Equal(t, "PENDING", sub.Status)
	assert.Equal(t, []int64{7}, f.projects.processing)
}

func TestExecuteRejections(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		user   int64
		status int
		code   string
	}{
		{"no identity", `{"projectId":7,"originalPrompt":"x"}`, 0, http.StatusUnauthorized, "unauthorized"},
		{"blank prompt", `{"projectId":7,"originalPrompt":"   "}`, 1, http.StatusBadRequest, "invalid_request"},
		{"missing project", `{"originalPrompt":"x"}`, 1, http.StatusBadRequest, "invalid_request"},
		{"foreign project", `{"projectId":8,"originalPrompt":"x"}`, 1, http.StatusNotFound, "project_not_found"},
		{"unknown project", `{"projectId":99,"originalPrompt":"x"}`, 1, http.StatusNotFound, "project_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/workflow/execute", tc.body, tc.user)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, rec))
			assert.Empty(t, f.projects.processing)
		})
	}
}

func TestExecuteWhileShuttingDown(t *testing.T) {
	f := newFixture(t)
	f.submitter.err = supervisor.ErrShuttingDown
	rec := f.do(http.MethodPost, "/api/workflow/execute", `{"projectId":7,"originalPrompt":"x"}`, 1)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "shutting_down", errorCode(t, rec))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/workflow/status/job-1", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Job jobs.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body.Job.ID)
	assert.Equal(t, jobs.StatusRunning, body.Job.Status)

	rec = f.do(http.MethodGet, "/api/workflow/status/nope", "", 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job_not_found", errorCode(t, rec))

	rec = f.do(http.MethodGet, "/api/workflow/status/job-1", "", 2)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerToken(t *testing.T) {
	f := newFixture(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/workflow/status/job-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/workflow/status/job-1?token="+bad, nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProgressStream(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/workflow/progress/7", nil)
	req.Header.Set("X-User-Id", "1")
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(rec, req)
	}()

	key := realtime.ProjectKey(7)
	require.Eventually(t, func() bool { return f.bus.Has(key) }, time.Second, 5*time.Millisecond)
	require.True(t, f.bus.Publish(workflow.WorkflowCompleted("job-9", 7, map[string]any{"ok": true}, 5)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("progress stream did not close after terminal event")
	}
	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 2, strings.Count(body, "event: workflow-progress\n"))
	assert.Contains(t, body, "connection established")
	assert.Contains(t, body, `"eventType":"WORKFLOW_COMPLETED"`)
	assert.False(t, f.bus.Has(key))
	assert.False(t, f.bus.Has("job-9"))
}

func TestProgressRejectsForeignProject(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/workflow/progress/8", "", 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/api/workflow/progress/abc", "", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.bus.ActiveCount())
}

func TestConnectionsHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	_, err := f.bus.Connect("job-3", 7, 1)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/workflow/connections", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	var st realtime.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.TotalConnections)
	assert.Equal(t, []string{"job-3"}, st.Keys)

	rec = f.do(http.MethodGet, "/healthcheck", "", 0)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", "", 0)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHistoryWithoutStores(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/workflow/projects/7/history", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[],"models":[]}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/workflow/projects/8/history", "", 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
