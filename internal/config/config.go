// Package config provides centralized configuration management for the
// server and client binaries. Defaults live here; environment variables
// override them.
package config

import (
	"os"
	"strconv"
)

// ServerConfig holds the network-facing server settings.
type ServerConfig struct {
	ListenAddr string // game websocket listener
	OpsAddr    string // loaded from ARENA_OPS_ADDR; no listener is opened on it, status/metrics/pprof share the router on ListenAddr
	// MaxConnections caps slot-occupying (pending + ready) connections;
	// connections beyond it wait in a queue that has no size limit.
	MaxConnections int
	// MaxPlayersPerClient caps local players multiplexed on one connection.
	MaxPlayersPerClient int
	// TicksPerSnapshot sends a snapshot every Nth tick (1 = every tick).
	TicksPerSnapshot int
	// TimeoutRetentionSecs keeps characters of non-gracefully disconnected
	// clients for reconnect.
	TimeoutRetentionSecs int
	RconModeratorSecret  string
	RconAdminSecret      string
	// DemoPath, when set, records the world events and the snapshot of every
	// snapshot tick (see TicksPerSnapshot) to this file.
	DemoPath string
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		ListenAddr:           ":8303",
		OpsAddr:              ":8304",
		MaxConnections:       64,
		MaxPlayersPerClient:  4,
		TicksPerSnapshot:     1,
		TimeoutRetentionSecs: 120,
	}
}

// ServerFromEnv returns the server configuration with environment overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()
	if v := os.Getenv("ARENA_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ARENA_OPS_ADDR"); v != "" {
		cfg.OpsAddr = v
	}
	if v := getEnvInt("ARENA_MAX_CONNECTIONS", 0); v > 0 {
		cfg.MaxConnections = v
	}
	if v := getEnvInt("ARENA_MAX_PLAYERS_PER_CLIENT", 0); v > 0 {
		cfg.MaxPlayersPerClient = v
	}
	if v := getEnvInt("ARENA_TICKS_PER_SNAPSHOT", 0); v > 0 {
		cfg.TicksPerSnapshot = v
	}
	if v := getEnvInt("ARENA_TIMEOUT_RETENTION_SECS", -1); v >= 0 {
		cfg.TimeoutRetentionSecs = v
	}
	if v := os.Getenv("ARENA_RCON_MODERATOR_SECRET"); v != "" {
		cfg.RconModeratorSecret = v
	}
	if v := os.Getenv("ARENA_RCON_ADMIN_SECRET"); v != "" {
		cfg.RconAdminSecret = v
	}
	if v := os.Getenv("ARENA_DEMO_PATH"); v != "" {
		cfg.DemoPath = v
	}
	return cfg
}

// GameConfig holds the match rules passed to the game state.
type GameConfig struct {
	MapName             string
	MaxIngame           int
	FriendlyFire        bool
	Sided               bool
	ScoreLimit          int
	TimeLimitSecs       int
	AutoSideBalanceSecs int
}

// DefaultGame returns a solo deathmatch rule set.
func DefaultGame() GameConfig {
	return GameConfig{
		MapName:    "dm1",
		MaxIngame:  16,
		ScoreLimit: 20,
	}
}

// GameFromEnv returns the game configuration with environment overrides.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()
	if v := os.Getenv("ARENA_MAP"); v != "" {
		cfg.MapName = v
	}
	if v := getEnvInt("ARENA_MAX_INGAME", 0); v > 0 {
		cfg.MaxIngame = v
	}
	cfg.FriendlyFire = getEnvBool("ARENA_FRIENDLY_FIRE", cfg.FriendlyFire)
	cfg.Sided = getEnvBool("ARENA_SIDED", cfg.Sided)
	if v := getEnvInt("ARENA_SCORE_LIMIT", -1); v >= 0 {
		cfg.ScoreLimit = v
	}
	if v := getEnvInt("ARENA_TIME_LIMIT_SECS", -1); v >= 0 {
		cfg.TimeLimitSecs = v
	}
	if v := getEnvInt("ARENA_AUTO_SIDE_BALANCE_SECS", -1); v >= 0 {
		cfg.AutoSideBalanceSecs = v
	}
	return cfg
}

// ClientConfig holds the client game loop settings.
type ClientConfig struct {
	ServerAddr string
	Name       string
	// Prediction enables instant-input prediction.
	Prediction bool
	// AntiPing drops the ping pull-back from the render interpolation factor.
	AntiPing bool
}

// DefaultClient returns the default client configuration.
func DefaultClient() ClientConfig {
	return ClientConfig{
		ServerAddr: "ws://127.0.0.1:8303/play",
		Name:       "nameless tee",
		Prediction: true,
	}
}

// ClientFromEnv returns the client configuration with environment overrides.
func ClientFromEnv() ClientConfig {
	cfg := DefaultClient()
	if v := os.Getenv("ARENA_SERVER_ADDR"); v != "" {
		cfg.ServerAddr = v
	}
	if v := os.Getenv("ARENA_PLAYER_NAME"); v != "" {
		cfg.Name = v
	}
	cfg.Prediction = getEnvBool("ARENA_PREDICTION", cfg.Prediction)
	cfg.AntiPing = getEnvBool("ARENA_ANTI_PING", cfg.AntiPing)
	return cfg
}

// getEnvInt reads an integer environment variable with a fallback.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvBool reads a boolean environment variable with a fallback.
func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
