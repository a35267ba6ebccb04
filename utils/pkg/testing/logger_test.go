package envtesting

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvtesting_LevelFromEnv(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, levelFromEnv("2"))
	require.Equal(t, slog.LevelInfo, levelFromEnv("1"))
	require.Equal(t, slog.LevelError, levelFromEnv(""))
	require.Equal(t, slog.LevelError, levelFromEnv("yes"))
}

func TestEnvtesting_NewLogger(t *testing.T) {
	t.Setenv("DEBUG", "2")
	require.True(t, NewLogger().Enabled(t.Context(), slog.LevelDebug))

	t.Setenv("DEBUG", "")
	log := NewLogger()
	require.False(t, log.Enabled(t.Context(), slog.LevelInfo))
	require.True(t, log.Enabled(t.Context(), slog.LevelError))
}
