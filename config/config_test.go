package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Server.PollInterval)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Transport.URL)
	assert.Equal(t, 10, cfg.Transport.ReconnectAttempts)
	assert.Equal(t, 20, cfg.Playback.ProbeAttempts)
	assert.Equal(t, 2*time.Second, cfg.Playback.ProbeInterval)
	assert.Equal(t, "auto", cfg.Playback.Strategy)
	assert.Equal(t, []string{"-autoexit", "-loglevel", "error"}, cfg.Playback.PlayerArgs)
	assert.Equal(t, "spectator.db", cfg.Quiz.LedgerPath)
	assert.Equal(t, "8090", cfg.Control.Port)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_BASE_URL", "https://live.example.com")
	t.Setenv("POLL_INTERVAL_SEC", "2")
	t.Setenv("PLAYER_ARGS", "-fs, -loglevel ,quiet")
	t.Setenv("PROBE_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Server.PollInterval)
	assert.Equal(t, "wss://live.example.com/ws", cfg.Transport.URL)
	assert.Equal(t, []string{"-fs", "-loglevel", "quiet"}, cfg.Playback.PlayerArgs)
	// Unparseable integers fall back to the default.
	assert.Equal(t, 20, cfg.Playback.ProbeAttempts)
}

func TestExplicitWSURLWins(t *testing.T) {
	t.Setenv("SERVER_BASE_URL", "https://live.example.com")
	t.Setenv("WS_URL", "wss://push.example.com/socket")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "wss://push.example.com/socket", cfg.Transport.URL)
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "wss://a.example.com/ws", deriveWSURL("https://a.example.com"))
	assert.Equal(t, "ws://a.example.com:8080/ws", deriveWSURL("http://a.example.com:8080"))
}
