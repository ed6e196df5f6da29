package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, "sql", cfg.Store.Backend)
	assert.Equal(t, 100, cfg.Game.StartXPToNext)
	assert.Equal(t, 1000, cfg.Game.DifficultyXP["epic"])
	assert.Equal(t, 30*time.Second, cfg.GenAI.Timeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("server:\n  port: 9090\ngame:\n  daily_reward_xp: 70\nstore:\n  backend: cache\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 70, cfg.Game.DailyRewardXP)
	assert.Equal(t, "cache", cfg.Store.Backend)
	// untouched keys keep their defaults
	assert.Equal(t, 25, cfg.Game.DailyRewardGold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("LIFEQUEST_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, GameConfig{}.Location())
	assert.Equal(t, time.Local, GameConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "UTC", GameConfig{Timezone: "UTC"}.Location().String())
}
