package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/craftflow-backend/internal/data/dberr"
	types "github.com/yungbote/craftflow-backend/internal/domain"
	"github.com/yungbote/craftflow-backend/internal/http/response"
	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/jobs/supervisor"
	"github.com/yungbote/craftflow-backend/internal/platform/apierr"
	"github.com/yungbote/craftflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

// ProjectStore is the slice of the image project repo the handlers need.
type ProjectStore interface {
	GetOwned(dbc dbctx.Context, id, userID int64) (*types.ImageProject, error)
	MarkProcessing(dbc dbctx.Context, id int64, prompt string) error
}

type Submitter interface {
	Submit(ctx context.Context, userID, projectID int64, prompt string) (supervisor.Submission, error)
}

type JobReader interface {
	Get(ctx context.Context, id string) (jobs.Job, error)
}

type RunHistory interface {
	ListByProject(dbc dbctx.Context, projectID int64, limit int) ([]*types.JobRun, error)
}

type ModelHistory interface {
	ListByProject(dbc dbctx.Context, projectID int64) ([]*types.ThreeDResult, error)
}

type WorkflowHandler struct {
	log       *logger.Logger
	projects  ProjectStore
	submitter Submitter
	jobs      JobReader
	runs      RunHistory
	models    ModelHistory
}

func NewWorkflowHandler(log *logger.Logger, projects ProjectStore, submitter Submitter, jobs JobReader) *WorkflowHandler {
	return &WorkflowHandler{
		log:       log.With("handler", "WorkflowHandler"),
		projects:  projects,
		submitter: submitter,
		jobs:      jobs,
	}
}

// WithHistory enables the project history endpoint.
func (h *WorkflowHandler) WithHistory(runs RunHistory, models ModelHistory) *WorkflowHandler {
	h.runs = runs
	h.models = models
	return h
}

type executeRequest struct {
	ProjectID      int64  `json:"projectId" binding:"required,min=1"`
	OriginalPrompt string `json:"originalPrompt" binding:"required"`
}

// POST /api/workflow/execute
func (h *WorkflowHandler) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	prompt := strings.TrimSpace(req.OriginalPrompt)
	if prompt == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("originalPrompt must not be blank"))
		return
	}

	ctx := c.Request.Context()
	userID := ctxutil.UserID(ctx)
	if err := ownProject(ctx, h.projects, req.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err, "project_lookup_failed")
		return
	}
	if h.projects != nil {
		if err := h.projects.MarkProcessing(dbctx.Of(ctx), req.ProjectID, prompt); err != nil {
			h.log.Error("Mark project processing failed", "error", err, "project_id", req.ProjectID)
			response.RespondError(c, http.StatusInternalServerError, "project_update_failed", err)
			return
		}
	}

	sub, err := h.submitter.Submit(ctx, userID, req.ProjectID, prompt)
	switch {
	case errors.Is(err, supervisor.ErrInvalidRequest):
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	case errors.Is(err, supervisor.ErrShuttingDown):
		response.RespondError(c, http.StatusServiceUnavailable, "shutting_down", err)
		return
	case err != nil:
		h.log.Error("Submit workflow failed", "error", err, "project_id", req.ProjectID)
		response.RespondError(c, http.StatusInternalServerError, "submit_failed", err)
		return
	}
	response.RespondOK(c, sub)
}

// GET /api/workflow/status/:jobId
func (h *WorkflowHandler) Status(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobId"))
	if jobID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", errors.New("job id required"))
		return
	}
	ctx := c.Request.Context()
	job, err := h.jobs.Get(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		response.RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	if err != nil {
		h.log.Error("Load job failed", "error", err, "job_id", jobID)
		response.RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	if userID := ctxutil.UserID(ctx); userID != 0 && job.UserID != userID {
		response.RespondError(c, http.StatusNotFound, "job_not_found", jobs.ErrNotFound)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

const historyLimit = 20

// GET /api/workflow/projects/:projectId/history
func (h *WorkflowHandler) History(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("projectId"), 10, 64)
	if err != nil || projectID < 1 {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", errors.New("project id must be a positive integer"))
		return
	}
	ctx := c.Request.Context()
	if err := ownProject(ctx, h.projects, projectID, ctxutil.UserID(ctx)); err != nil {
		response.RespondAPIError(c, err, "project_lookup_failed")
		return
	}
	runs := []*types.JobRun{}
	models := []*types.ThreeDResult{}
	if h.runs != nil {
		if runs, err = h.runs.ListByProject(dbctx.Of(ctx), projectID, historyLimit); err != nil {
			response.RespondError(c, http.StatusInternalServerError, "history_lookup_failed", err)
			return
		}
	}
	if h.models != nil {
		if models, err = h.models.ListByProject(dbctx.Of(ctx), projectID); err != nil {
			response.RespondError(c, http.StatusInternalServerError, "history_lookup_failed", err)
			return
		}
	}
	response.RespondOK(c, gin.H{"runs": runs, "models": models})
}

// ownProject reports a missing and a foreign project alike as 404.
func ownProject(ctx context.Context, projects ProjectStore, projectID, userID int64) error {
	if projects == nil {
		return nil
	}
	_, err := projects.GetOwned(dbctx.Of(ctx), projectID, userID)
	if errors.Is(err, dberr.ErrNotFound) {
		return apierr.NotFound("project_not_found", errors.New("image project not found"))
	}
	return err
}
