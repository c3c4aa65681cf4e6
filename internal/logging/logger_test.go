package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_WritesKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap("extractor", zap.New(core))

	l.Info("extraction finished", "job_id", "abc", "confidence", 95)
	l.Debug("queue idle")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "extractor", entries[0].LoggerName)
	assert.Equal(t, "extraction finished", entries[0].Message)
	assert.Equal(t, "abc", entries[0].ContextMap()["job_id"])
	assert.EqualValues(t, 95, entries[0].ContextMap()["confidence"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap("queue", zap.New(core)).With("worker", 3)

	l.Warn("retrying")
	l.Error("gave up", "attempts", 5)

	entries := logs.All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.EqualValues(t, 3, e.ContextMap()["worker"])
	}
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("loud", false))
	assert.NoError(t, Init("debug", true))
	assert.NotNil(t, NewLogger("test"))
}

func TestNewNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Info("nothing", "k", "v")
		l.Printf("%d", 1)
	})
}
