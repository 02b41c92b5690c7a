package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/craftflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

const skipRequestLogKey = "skip_request_log"

// loggedParams are route params copied onto the access log line.
var loggedParams = [...]struct{ param, field string }{
	{"jobId", "job_id"},
	{"projectId", "project_id"},
}

// SkipRequestLog suppresses the access log line for the current request.
func SkipRequestLog(c *gin.Context) { c.Set(skipRequestLogKey, true) }

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}
		// Long-lived streams log their own lifecycle.
		if c.GetBool(skipRequestLogKey) {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		td := ctxutil.GetTraceData(c.Request.Context())
		rd := ctxutil.GetRequestData(c.Request.Context())

		fields := []any{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if td != nil {
			if td.TraceID != "" {
				fields = append(fields, "trace_id", td.TraceID)
			}
			if td.RequestID != "" {
				fields = append(fields, "request_id", td.RequestID)
			}
		}
		if rd != nil && rd.UserID > 0 {
			fields = append(fields, "user_id", rd.UserID)
		}
		for _, p := range loggedParams {
			if v := c.Param(p.param); v != "" {
				fields = append(fields, p.field, v)
			}
		}
		if st := c.Writer.Size(); st > 0 {
			fields = append(fields, "bytes", st)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
