package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	WebRTC   WebRTCConfig
	Live     LiveConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/pulseclass?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT validation settings for the identity adapter.
type JWTConfig struct {
	Secret      string
	ExpireHours int
	DevTokens   bool // expose POST /auth/token for local development
}

// WebRTCConfig holds STUN/TURN ICE server URLs surfaced to clients for peer negotiation.
type WebRTCConfig struct {
	ICEUrls []string // e.g. stun:stun.l.google.com:19302 (comma-separated in env)
}

// LiveConfig holds tunables for the live-session coordination core.
type LiveConfig struct {
	HistorySize        int           // chat messages kept per session for late-joiner replay
	MaxMessageLen      int           // max chat body length after trimming
	SendBuffer         int           // per-participant outbound event queue
	SweepInterval      time.Duration // idle sweep cadence
	EndedRetention     time.Duration // how long ended sessions stay in memory
	EmptyLiveGrace     time.Duration // zero-participant live sessions are force-ended after this
	ReactionsPerSecond int           // per-user reaction rate limit
	ViolationThreshold int           // default moderation auto-block threshold
	BannedWords        []string      // auto-rejected chat terms (comma-separated in env)
	WatchedWords       []string      // chat terms flagged for host review
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/pulseclass?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "pulseclass"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
			DevTokens:   getEnv("DEV_TOKENS", "false") == "true",
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		Live: LiveConfig{
			HistorySize:        getEnvInt("LIVE_HISTORY_SIZE", 200),
			MaxMessageLen:      getEnvInt("LIVE_MAX_MESSAGE_LEN", 1000),
			SendBuffer:         getEnvInt("LIVE_SEND_BUFFER", 256),
			SweepInterval:      getEnvDuration("LIVE_SWEEP_INTERVAL", 30*time.Second),
			EndedRetention:     getEnvDuration("LIVE_ENDED_RETENTION", 5*time.Minute),
			EmptyLiveGrace:     getEnvDuration("LIVE_EMPTY_GRACE", 2*time.Minute),
			ReactionsPerSecond: getEnvInt("LIVE_REACTIONS_PER_SEC", 5),
			ViolationThreshold: getEnvInt("LIVE_VIOLATION_THRESHOLD", 3),
			BannedWords:        splitTrim(getEnv("LIVE_BANNED_WORDS", ""), ","),
			WatchedWords:       splitTrim(getEnv("LIVE_WATCHED_WORDS", ""), ","),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
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
