package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRelay_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 4, cfg.DefaultCapacity)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Zero(t, cfg.IdleTimeout)
	assert.True(t, cfg.OtelEnabled)
	assert.Empty(t, cfg.OtelEndpoint)
}

func TestLoadRelay_InvalidCapacity(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LOBBY_DEFAULT_CAPACITY", "8")
	t.Setenv("LOBBY_MAX_CAPACITY", "4")

	_, err := LoadRelay()
	assert.Error(t, err)
}

func TestLoadRelay_ParseError(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LOBBY_WS_WRITE_TIMEOUT", "soon")

	_, err := LoadRelay()
	assert.ErrorContains(t, err, "parse env")
}

func TestLoadClient_GeneratesPersistentID(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadClient()
	require.NoError(t, err)
	_, err = uuid.Parse(cfg.PersistentID)
	assert.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.KickGrace)
	assert.Equal(t, 4, cfg.Capacity)
}

func TestLoadClient_RejectsBadPersistentID(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LOBBY_PERSISTENT_ID", "not-a-uuid")

	_, err := LoadClient()
	assert.ErrorContains(t, err, "LOBBY_PERSISTENT_ID")
}

func TestLoadClient_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	id := uuid.NewString()
	env := "LOBBY_DISPLAY_NAME=Caitlyn\nLOBBY_PERSISTENT_ID=" + id + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOBBY_DISPLAY_NAME")
		os.Unsetenv("LOBBY_PERSISTENT_ID")
	})

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "Caitlyn", cfg.DisplayName)
	assert.Equal(t, id, cfg.PersistentID)
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
