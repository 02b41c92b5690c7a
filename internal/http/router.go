package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/craftflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/craftflow-backend/internal/http/middleware"
	"github.com/yungbote/craftflow-backend/internal/observability"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

const progressRoute = "/api/workflow/progress/:projectId"

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	IdentityMiddleware *httpMW.IdentityMiddleware
	WorkflowHandler    *httpH.WorkflowHandler
	ProgressHandler    *httpH.ProgressHandler
	HealthHandler      *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics, progressRoute, "/metrics"))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))

	workflow := r.Group("/api/workflow")
	{
		if cfg.IdentityMiddleware != nil {
			workflow.Use(cfg.IdentityMiddleware.RequireUser())
		}

		if cfg.WorkflowHandler != nil {
			workflow.POST("/execute", cfg.WorkflowHandler.Execute)
			workflow.GET("/status/:jobId", cfg.WorkflowHandler.Status)
			workflow.GET("/projects/:projectId/history", cfg.WorkflowHandler.History)
		}

		// Progress (SSE)
		if cfg.ProgressHandler != nil {
			workflow.GET("/progress/:projectId", cfg.ProgressHandler.Subscribe)
			workflow.GET("/connections", cfg.ProgressHandler.Connections)
		}
	}

	return r
}
