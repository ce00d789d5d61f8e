package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	assert.Error(t, err)
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger, err := New(Config{Level: level, OutputPaths: []string{"stderr"}})
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestForRankAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := (&Logger{Logger: zap.New(core)}).ForRank(2, 5)

	logger.Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(2), fields["rank"])
	assert.Equal(t, int64(5), fields["workers"])
}

func TestWithRunAndNamed(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := (&Logger{Logger: zap.New(core)}).Named("afilter").WithRun("run_01")

	logger.Debug("transition")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "afilter", entry.LoggerName)
	assert.Equal(t, "run_01", entry.ContextMap()["run_id"])
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings("", true)
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Development)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)

	cfg = FromSettings("debug", false)
	assert.Equal(t, "debug", cfg.Level)

	logger, err := New(FromSettings("warn", true))
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
}
