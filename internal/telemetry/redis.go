package telemetry

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func MonitorRedis(r redis.UniversalClient, l *zap.Logger) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{l: l.Named("redis")})
	return nil
}

// redisLog traces every command at debug level.
type redisLog struct {
	l *zap.Logger
}

func (r redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			r.l.Warn("dial failed", zap.String("network", network), zap.String("addr", addr), zap.Error(err))
			return conn, err
		}
		r.l.Info("dialed", zap.String("network", network), zap.String("addr", addr))
		return conn, nil
	}
}

func (r redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := hook(ctx, cmd)
		if ce := r.l.Check(zap.DebugLevel, "processed"); ce != nil {
			ce.Write(zap.Stringer("cmd", cmd), zap.Error(err))
		}
		return err
	}
}

func (r redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := hook(ctx, cmds)
		if ce := r.l.Check(zap.DebugLevel, "pipeline processed"); ce != nil {
			ce.Write(zap.Int("cmds", len(cmds)), zap.Error(err))
		}
		return err
	}
}
