package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/realtime"
	"github.com/yungbote/craftflow-backend/internal/realtime/bus"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

type Realtime struct {
	Bus     *realtime.ProgressBus
	Emitter workflow.Emitter

	// Relay and Redis are nil when REDIS_ADDR is unset.
	Relay bus.Bus
	Redis goredis.UniversalClient
}

func wireRealtime(ctx context.Context, log *logger.Logger, cfg Config) (Realtime, error) {
	log.Info("Wiring realtime...")
	local := realtime.NewProgressBus(log)
	rt := Realtime{Bus: local, Emitter: realtime.LocalEmitter{Bus: local}}
	if cfg.RedisAddr == "" {
		return rt, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return Realtime{}, fmt.Errorf("redis ping: %w", err)
	}
	rt.Redis = rdb
	rt.Relay = bus.NewRedisBusFromClient(log, rdb, cfg.RedisChannel)
	rt.Emitter = realtime.NewRelayEmitter(log, rt.Relay, local)
	log.Info("Progress relay enabled", "addr", cfg.RedisAddr)
	return rt, nil
}

func (r *Realtime) Close() {
	if r == nil {
		return
	}
	if r.Bus != nil {
		r.Bus.Shutdown()
	}
	if r.Relay != nil {
		// Closing the relay closes the shared client.
		_ = r.Relay.Close()
	}
}
