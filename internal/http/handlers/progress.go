package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/craftflow-backend/internal/http/response"
	"github.com/yungbote/craftflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/realtime"
)

type ProgressHandler struct {
	log       *logger.Logger
	bus       *realtime.ProgressBus
	projects  ProjectStore
	heartbeat time.Duration
}

func NewProgressHandler(log *logger.Logger, bus *realtime.ProgressBus, projects ProjectStore, heartbeat time.Duration) *ProgressHandler {
	return &ProgressHandler{
		log:       log.With("handler", "ProgressHandler"),
		bus:       bus,
		projects:  projects,
		heartbeat: heartbeat,
	}
}

// GET /api/workflow/progress/:projectId
//
// The stream is registered under the project key unless ?jobId= names a
// specific run. Disconnecting only releases the connection; the run goes on.
func (h *ProgressHandler) Subscribe(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("projectId"), 10, 64)
	if err != nil || projectID < 1 {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", errors.New("project id must be a positive integer"))
		return
	}
	ctx := c.Request.Context()
	userID := ctxutil.UserID(ctx)
	if err := ownProject(ctx, h.projects, projectID, userID); err != nil {
		response.RespondAPIError(c, err, "project_lookup_failed")
		return
	}

	key := realtime.ProjectKey(projectID)
	if jobID := strings.TrimSpace(c.Query("jobId")); jobID != "" {
		key = jobID
	}
	conn, err := h.bus.Connect(key, projectID, userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "subscribe_failed", err)
		return
	}
	defer h.bus.Release(conn)

	log := h.log.With("conn_id", conn.ID, "key", key, "user_id", userID)
	log.Info("Progress stream open")
	start := time.Now()
	if err := realtime.Stream(ctx, c.Writer, conn, h.heartbeat); err != nil {
		log.Warn("Progress stream ended with error", "error", err)
	}
	log.Info("Progress stream closed", "duration_ms", time.Since(start).Milliseconds())
}

// GET /api/workflow/connections
func (h *ProgressHandler) Connections(c *gin.Context) {
	response.RespondOK(c, h.bus.Stats())
}
