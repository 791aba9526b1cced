package logger

import (
	"context"
	"sync"

	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	ServiceName string
	Development bool
}

// Logger is a key/value structured logger backed by zap
type Logger struct {
	sugar *zap.SugaredLogger
}

var (
	global *Logger
	mu     sync.RWMutex
)

// Init builds the process-wide logger
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// New builds a logger without installing it globally
func New(cfg *Config) (*Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			level = zapcore.InfoLevel
		}
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName != "" {
		z = z.With(zap.String("service", cfg.ServiceName))
	}

	return &Logger{sugar: z.Sugar()}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Get returns the global logger, or a no-op logger before Init
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return Nop()
	}
	return global
}

// Sync flushes buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		_ = global.sugar.Sync()
	}
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.sugar.Fatalw(msg, kv...) }

// InfoContext logs with the trace id of ctx attached
func (l *Logger) InfoContext(ctx context.Context, msg string, kv ...interface{}) {
	l.sugar.Infow(msg, withTrace(ctx, kv)...)
}

// WarnContext logs with the trace id of ctx attached
func (l *Logger) WarnContext(ctx context.Context, msg string, kv ...interface{}) {
	l.sugar.Warnw(msg, withTrace(ctx, kv)...)
}

// ErrorContext logs with the trace id of ctx attached
func (l *Logger) ErrorContext(ctx context.Context, msg string, kv ...interface{}) {
	l.sugar.Errorw(msg, withTrace(ctx, kv)...)
}

func withTrace(ctx context.Context, kv []interface{}) []interface{} {
	if traceID := telemetry.GetTraceID(ctx); traceID != "" {
		kv = append(kv, "trace_id", traceID, "span_id", telemetry.GetSpanID(ctx))
	}
	return kv
}
