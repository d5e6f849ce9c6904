package telemetry

import (
	"context"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func GRPCServerInterceptor(l *zap.Logger) grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
	}

	return grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(grpcServerLogger(l), opts...),
	)
}

func grpcServerLogger(l *zap.Logger) logging.Logger {
	s := l.Sugar()

	return logging.LoggerFunc(func(_ context.Context, lvl logging.Level, msg string, fields ...any) {
		switch lvl {
		case logging.LevelDebug:
			s.Debugw(msg, fields...)
		case logging.LevelInfo:
			s.Infow(msg, fields...)
		case logging.LevelWarn:
			s.Warnw(msg, fields...)
		case logging.LevelError:
			s.Errorw(msg, fields...)
		default:
			panic(fmt.Sprintf("unknown level %v", lvl))
		}
	})
}
