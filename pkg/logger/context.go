package logger

import (
	"context"

	"go.uber.org/zap"
)

type requestIDKey struct{}

// WithRequestID 将请求 ID 写入 context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID 从 context 读取请求 ID
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// FromContext 附带请求 ID 的子 Logger
func FromContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	if rid := RequestID(ctx); rid != "" {
		return l.With(zap.String("request_id", rid))
	}
	return l
}
