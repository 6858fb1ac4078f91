package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		development bool
		level       string
		enabled     zapcore.Level
		disabled    []zapcore.Level
	}{
		{name: "development debug", development: true, level: "debug", enabled: zapcore.DebugLevel},
		{name: "production default", level: "", enabled: zapcore.InfoLevel, disabled: []zapcore.Level{zapcore.DebugLevel}},
		{name: "production warn", level: "warn", enabled: zapcore.WarnLevel, disabled: []zapcore.Level{zapcore.InfoLevel}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tt.development, tt.level)
			require.NoError(t, err)
			require.NotNil(t, logger)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			assert.True(t, logger.Core().Enabled(tt.enabled))
			for _, lvl := range tt.disabled {
				assert.False(t, logger.Core().Enabled(lvl))
			}
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(false, "chatty")
	require.Error(t, err)
}
