package telemetry

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig — настройки логирования.
type LogConfig struct {
	// Level — debug, info, warn, error. По умолчанию: info.
	Level string

	// Format — "json" (по умолчанию) для production, "console" для разработки.
	Format string
}

// ParseLevel переводит строку уровня в zapcore.Level.
// Неизвестные значения дают info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetupLogger инициализирует глобальный логгер.
func SetupLogger(cfg LogConfig) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

	var zcfg zap.Config
	if cfg.Format == "console" || cfg.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableCaller = level != zapcore.DebugLevel
	// Стек прикладываем сами там, где он нужен (Fatal).
	zcfg.DisableStacktrace = true

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}

// Fatal пишет запись уровня FATAL, не завершая процесс.
//
// logger.Fatal вызывает os.Exit; воркеру же нужно сначала вернуть ошибку
// наверх, поэтому запись идёт напрямую через core.
func Fatal(logger *zap.Logger, msg string, fields ...zap.Field) {
	ent := zapcore.Entry{
		Level:      zapcore.FatalLevel,
		Time:       time.Now(),
		LoggerName: logger.Name(),
		Message:    msg,
	}
	if ce := logger.Core().Check(ent, nil); ce != nil {
		ce.Write(fields...)
	}
}

// WithTaskID возвращает логгер с добавленным task_id.
func WithTaskID(logger *zap.Logger, taskID string) *zap.Logger {
	return logger.With(zap.String("task_id", taskID))
}

// WithResourceID возвращает логгер с добавленным resource_id.
func WithResourceID(logger *zap.Logger, resourceID string) *zap.Logger {
	return logger.With(zap.String("resource_id", resourceID))
}
