package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsFillMissingSections(t *testing.T) {
	path := writeConfig(t, "app:\n  name: test-pong\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-pong", cfg.App.Name)
	assert.Equal(t, 30, cfg.Game.TickRate)
	assert.Equal(t, 300*time.Second, cfg.Room.CacheTTL)
	assert.Equal(t, time.Hour, cfg.Room.FinishedRetention)
	assert.Equal(t, 3*time.Second, cfg.Lease.TTL)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.NATSEnabled())
	assert.False(t, cfg.DatabaseEnabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "redis:\n  host: file-host\n  port: 6380\njwt:\n  secret_key: file-secret\n")

	t.Setenv("REDIS_HOST", "env-host")
	t.Setenv("JWT_SECRET_KEY", "env-secret")
	t.Setenv("FINISHED_GAME_TTL", "300")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "env-secret", cfg.JWT.SecretKey)
	assert.Equal(t, 300*time.Second, cfg.Room.FinishedRetention)
}

func TestLoad_RejectsBadTickRate(t *testing.T) {
	path := writeConfig(t, "game:\n  tick_rate: 0\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PONG_TEST_INT", "42")
	t.Setenv("PONG_TEST_BAD_INT", "forty-two")
	t.Setenv("PONG_TEST_DURATION", "1500ms")
	t.Setenv("PONG_TEST_BOOL", "true")

	assert.Equal(t, 42, GetEnvInt("PONG_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("PONG_TEST_BAD_INT", 1))
	assert.Equal(t, 1500*time.Millisecond, GetEnvDuration("PONG_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", GetEnv("PONG_TEST_UNSET", "fallback"))
	assert.True(t, GetEnvBool("PONG_TEST_BOOL", false))
}

func TestFrameDuration(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Second/30, cfg.Game.FrameDuration())
}

func TestLoad_CleanupIntervalBounds(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "one minute", value: "60s"},
		{name: "one second", value: "1s"},
		{name: "too long", value: "2m", wantErr: true},
		{name: "too short", value: "500ms", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "room:\n  cleanup_interval: "+tt.value+"\n")
			_, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefault_SendsEveryChange(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0, cfg.Game.DeltaDeadband)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("NODE_ID", "pong-7")
	t.Setenv("REDIS_HOST", "redis.internal")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "pong-7", cfg.App.NodeID)
	assert.True(t, cfg.RedisEnabled())
	assert.False(t, cfg.DatabaseEnabled())

	t.Setenv("PONG_TICK_RATE", "500")
	_, err = FromEnv()
	assert.Error(t, err)
}
