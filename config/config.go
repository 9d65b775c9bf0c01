package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds viewer configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Playback  PlaybackConfig
	Quiz      QuizConfig
	Control   ControlConfig
	LogLevel  string
}

// ServerConfig holds the broadcast server endpoints and polling settings.
type ServerConfig struct {
	BaseURL      string        // HTTP API base, e.g. https://live.example.com
	PollInterval time.Duration // interval between session snapshot polls
	Token        string        // opaque auth token passed on the socket query
}

// TransportConfig holds push-channel (WebSocket) settings.
type TransportConfig struct {
	URL               string // ws:// or wss:// endpoint; derived from BaseURL if empty
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// PlaybackConfig holds stream locator and playback engine settings.
type PlaybackConfig struct {
	StreamBaseURL    string        // base for stream_key locators, e.g. https://live.example.com/live
	ProbeAttempts    int           // availability probe attempts before giving up
	ProbeInterval    time.Duration // wait between probe attempts
	Strategy         string        // "native", "library" or "auto"
	PlayerCommand    string        // external player binary for the native strategy
	PlayerArgs       []string      // extra args before the stream URL
	SegmentDir       string        // where the library strategy writes segments; empty = discard
	FailureTolerance int           // consecutive playlist/segment failures before a fatal error
}

// QuizConfig holds quiz widget settings.
type QuizConfig struct {
	LedgerPath string // sqlite file recording answered quiz ids
}

// ControlConfig holds the local control/status HTTP API settings.
type ControlConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Server: ServerConfig{
			BaseURL:      getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SEC", 5)) * time.Second,
			Token:        getEnv("VIEWER_TOKEN", ""),
		},
		Transport: TransportConfig{
			URL:               getEnv("WS_URL", ""),
			ReconnectAttempts: getEnvInt("WS_RECONNECT_ATTEMPTS", 10),
			ReconnectDelay:    time.Duration(getEnvInt("WS_RECONNECT_DELAY_MS", 1000)) * time.Millisecond,
		},
		Playback: PlaybackConfig{
			StreamBaseURL:    getEnv("STREAM_BASE_URL", "https://localhost/live"),
			ProbeAttempts:    getEnvInt("PROBE_MAX_ATTEMPTS", 20),
			ProbeInterval:    time.Duration(getEnvInt("PROBE_INTERVAL_MS", 2000)) * time.Millisecond,
			Strategy:         getEnv("PLAYER_STRATEGY", "auto"),
			PlayerCommand:    getEnv("PLAYER_COMMAND", "ffplay"),
			PlayerArgs:       splitTrim(getEnv("PLAYER_ARGS", "-autoexit,-loglevel,error"), ","),
			SegmentDir:       getEnv("SEGMENT_DIR", ""),
			FailureTolerance: getEnvInt("PLAYBACK_FAILURE_TOLERANCE", 3),
		},
		Quiz: QuizConfig{
			LedgerPath: getEnv("QUIZ_LEDGER_PATH", "spectator.db"),
		},
		Control: ControlConfig{
			Port:         getEnv("CONTROL_PORT", "8090"),
			ReadTimeout:  getEnvInt("CONTROL_READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("CONTROL_WRITE_TIMEOUT_SEC", 30),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Transport.URL == "" {
		cfg.Transport.URL = deriveWSURL(cfg.Server.BaseURL)
	}
	return cfg, nil
}

// deriveWSURL converts an http(s) base URL into the matching ws(s) endpoint.
func deriveWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
