package applog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerReturnsNopWhenEnvUnset(t *testing.T) {
	t.Setenv("SOURCE_FAST_LOG_PATH", "")

	logger, closeFn := Server()
	defer closeFn()

	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}

func TestServerWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	t.Setenv("SOURCE_FAST_LOG_PATH", path)

	logger, closeFn := Server()
	logger.Info().Msg("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestLevelFromEnvDefaultsToInfo(t *testing.T) {
	t.Setenv("SOURCE_FAST_LOG_LEVEL", "")
	assert.Equal(t, "info", levelFromEnv().String())
}

func TestLevelFromEnvHonorsOverride(t *testing.T) {
	t.Setenv("SOURCE_FAST_LOG_LEVEL", "debug")
	assert.Equal(t, "debug", levelFromEnv().String())
}
