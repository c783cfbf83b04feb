package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestFatal_WritesWithoutExit(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	Fatal(logger, "exception processing task", zap.String("task", "civet-1"))

	// Если бы Fatal вызвал os.Exit, до этой строки тест бы не дошёл.
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.FatalLevel, entries[0].Level)
	assert.Equal(t, "exception processing task", entries[0].Message)
	assert.Equal(t, "civet-1", entries[0].ContextMap()["task"])
}

func TestSetupLogger(t *testing.T) {
	logger, err := SetupLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = SetupLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Cycles.Inc()
	m.TasksProcessed.WithLabelValues("Queued").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksProcessed.WithLabelValues("Queued")))

	// Повторная регистрация в том же реестре должна паниковать.
	assert.Panics(t, func() { NewMetrics(reg) })
}
