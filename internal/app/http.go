package app

import (
	"context"

	"gorm.io/gorm"

	apphttp "github.com/yungbote/craftflow-backend/internal/http"
	httpH "github.com/yungbote/craftflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/craftflow-backend/internal/http/middleware"
	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/jobs/supervisor"
	"github.com/yungbote/craftflow-backend/internal/observability"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Workflow *httpH.WorkflowHandler
	Progress *httpH.ProgressHandler
}

func wireHandlers(log *logger.Logger, cfg Config, db *gorm.DB, r Repos, rt Realtime, sup *supervisor.Supervisor, registry *jobs.Registry) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(checks),
		Workflow: httpH.NewWorkflowHandler(log, r.ImageProject, sup, registry).WithHistory(r.JobRun, r.ThreeDResult),
		Progress: httpH.NewProgressHandler(log, rt.Bus, r.ImageProject, cfg.StreamHeartbeat),
	}
}

func wireServer(log *logger.Logger, cfg Config, m *observability.Metrics, h Handlers) *apphttp.Server {
	log.Info("Wiring router...")
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:         log,
		ServiceName: ServiceName,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     m,
		IdentityMiddleware: httpMW.NewIdentityMiddleware(log, httpMW.IdentityConfig{
			JWTSecret:         cfg.JWTSecret,
			TrustUserIDHeader: cfg.TrustUserIDHeader,
		}),
		WorkflowHandler: h.Workflow,
		ProgressHandler: h.Progress,
		HealthHandler:   h.Health,
	})
}
