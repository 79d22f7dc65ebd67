package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonorsFormat(t *testing.T) {
	for _, format := range []string{"json", "pretty", ""} {
		logger := NewLogger(&Config{LogFormat: format, AppEnv: "test"})
		require.NotNil(t, logger)
		require.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	}
	require.NotNil(t, NewLogger(nil))
}

func TestInTestModeReadsEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	require.True(t, InTestMode())

	// The answer is fixed after the first read.
	t.Setenv(testModeEnv, "0")
	require.True(t, InTestMode())
}
