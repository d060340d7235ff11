package observability

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger: production JSON output at the given
// level, tagged with a run_id so log lines from different guardian runs can
// be told apart after a shutdown/restart cycle.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("run_id", uuid.NewString())), nil
}

// AuditConfig sizes the rotating shutdown audit log.
type AuditConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewAuditLogger returns a logger that appends JSON records to a rotating
// file. Shutdown decisions must be durable even when stdout is lost with the
// host, which is why this is a separate file and not the process logger.
func NewAuditLogger(cfg AuditConfig) *zap.Logger {
	if cfg.Path == "" {
		return zap.NewNop()
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	})
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		w,
		zapcore.InfoLevel,
	)
	return zap.New(core)
}
