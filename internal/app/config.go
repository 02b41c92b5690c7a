package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/craftflow-backend/internal/clients"
	"github.com/yungbote/craftflow-backend/internal/data/db"
	"github.com/yungbote/craftflow-backend/internal/observability"
	"github.com/yungbote/craftflow-backend/internal/platform/envutil"
	"github.com/yungbote/craftflow-backend/internal/platform/gcp"
	"github.com/yungbote/craftflow-backend/internal/platform/openai"
	"github.com/yungbote/craftflow-backend/internal/workflow/stages"
)

const ServiceName = "craftflow"

type Config struct {
	Environment string
	Version     string
	LogMode     string

	HTTPAddr          string `validate:"required"`
	CORSOrigins       []string
	JWTSecret         string
	TrustUserIDHeader bool
	ShutdownTimeout   time.Duration `validate:"gt=0"`

	MetricsEnabled bool
	MetricsAddr    string

	WorkerConcurrency int           `validate:"min=1,max=256"`
	ModelDelay        time.Duration `validate:"gte=0"`
	DeferredTimeout   time.Duration `validate:"gt=0"`
	JobRetention      time.Duration `validate:"gt=0"`
	SnapshotRetention time.Duration `validate:"gtefield=JobRetention"`
	PruneInterval     time.Duration `validate:"gt=0"`
	StreamHeartbeat   time.Duration `validate:"gt=0"`
	PipelinePath      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisChannel  string

	DB          db.Config
	OpenAI      openai.Config
	ObjectStore gcp.ObjectStoreConfig
	ImageSearch clients.ImageSearchConfig
	Model3D     clients.Model3DConfig
	Otel        observability.OtelConfig
}

// LoadConfig reads the environment. Callers load .env beforehand.
func LoadConfig() (Config, error) {
	store, err := gcp.ObjectStoreConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	env := envutil.String("APP_ENV", "development")
	version := envutil.String("APP_VERSION", "dev")
	cfg := Config{
		Environment: env,
		Version:     version,
		LogMode:     envutil.String("LOG_MODE", "development"),

		HTTPAddr:          ":" + strings.TrimPrefix(envutil.String("PORT", "8080"), ":"),
		CORSOrigins:       splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		JWTSecret:         envutil.String("JWT_SECRET_KEY", ""),
		TrustUserIDHeader: envutil.Bool("TRUST_USER_ID_HEADER", false),
		ShutdownTimeout:   envutil.Duration("SHUTDOWN_TIMEOUT", 30*time.Second),

		MetricsEnabled: envutil.Bool("METRICS_ENABLED", true),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		ModelDelay:        envutil.Duration("MODEL3D_POLL_DELAY", stages.DefaultModelDelay),
		DeferredTimeout:   envutil.Duration("DEFERRED_TIMEOUT", time.Minute),
		JobRetention:      envutil.Duration("JOB_RETENTION", 24*time.Hour),
		SnapshotRetention: envutil.Duration("JOB_SNAPSHOT_RETENTION", 30*24*time.Hour),
		PruneInterval:     envutil.Duration("JOB_PRUNE_INTERVAL", 10*time.Minute),
		StreamHeartbeat:   envutil.Duration("SSE_HEARTBEAT", 15*time.Second),
		PipelinePath:      envutil.String("PIPELINE_DEFINITION_PATH", ""),

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),
		RedisChannel:  envutil.String("REDIS_PROGRESS_CHANNEL", ""),

		DB:          db.ConfigFromEnv(),
		OpenAI:      openai.ConfigFromEnv(),
		ObjectStore: store,
		ImageSearch: clients.ImageSearchConfigFromEnv(),
		Model3D:     clients.Model3DConfigFromEnv(),
		Otel:        observability.OtelConfigFromEnv(ServiceName, env, version),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if strings.TrimSpace(c.JWTSecret) == "" && !c.TrustUserIDHeader {
		return fmt.Errorf("invalid config: set JWT_SECRET_KEY or TRUST_USER_ID_HEADER")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
