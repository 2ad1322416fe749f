package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"rpg-forum/internal/config"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, Level("debug"))
	assert.Equal(t, zapcore.WarnLevel, Level("warn"))
	assert.Equal(t, zapcore.ErrorLevel, Level("error"))
	assert.Equal(t, zapcore.InfoLevel, Level("verbose"))
}

func TestNew(t *testing.T) {
	log := New(config.LoggingConfig{Level: "warn"})
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.ErrorLevel))
}
