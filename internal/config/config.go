package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Snapshot backends
const (
	SnapshotFile  = "file"
	SnapshotMongo = "mongo"
	SnapshotRedis = "redis"
)

type Config struct {
	Port         string
	MentorSecret string
	JWTSecret    string

	SessionsDir     string
	SnapshotBackend string
	MongoURI        string
	MongoDatabase   string

	RedisURI       string
	LeaderboardTTL time.Duration
	SnapshotTTL    time.Duration

	WebSocket   WebSocketConfig
	CORSOrigins string
	Evaluator   *EvaluatorConfig
}

type WebSocketConfig struct {
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
	SendBuffer        int
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "3001"),
		MentorSecret:    os.Getenv("MENTOR_SECRET_KEY"),
		JWTSecret:       getEnv("JWT_SECRET", "super-secret-key-change-in-production"),
		SessionsDir:     getEnv("SESSIONS_DIR", "./sessions"),
		SnapshotBackend: getEnv("SNAPSHOT_BACKEND", SnapshotFile),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "codementor"),
		RedisURI:        os.Getenv("REDIS_URI"),
		LeaderboardTTL:  getDuration("LEADERBOARD_TTL", 24*time.Hour),
		SnapshotTTL:     getDuration("SNAPSHOT_TTL", 7*24*time.Hour),
		WebSocket: WebSocketConfig{
			MaxMessageBytes:   int64(getInt("WS_MAX_MESSAGE_BYTES", 64*1024)),
			MessagesPerSecond: getFloat("WS_MESSAGES_PER_SECOND", 20),
			Burst:             getInt("WS_BURST", 40),
			SendBuffer:        256,
		},
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		Evaluator:   DefaultEvaluatorConfig(),
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.MentorSecret == "" {
		return errors.New("MENTOR_SECRET_KEY is required")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %q", c.Port)
	}
	switch c.SnapshotBackend {
	case SnapshotFile:
		if c.SessionsDir == "" {
			return errors.New("SESSIONS_DIR cannot be empty")
		}
	case SnapshotMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo snapshot backend")
		}
	case SnapshotRedis:
		if c.RedisURI == "" {
			return errors.New("REDIS_URI is required for the redis snapshot backend")
		}
	default:
		return fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}
	if c.LeaderboardTTL <= 0 {
		return errors.New("LEADERBOARD_TTL must be positive")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return errors.New("WS_MAX_MESSAGE_BYTES must be positive")
	}
	if c.WebSocket.MessagesPerSecond <= 0 || c.WebSocket.Burst <= 0 {
		return errors.New("WS_MESSAGES_PER_SECOND and WS_BURST must be positive")
	}
	if c.Evaluator == nil {
		return errors.New("evaluator configuration is required")
	}
	return c.Evaluator.Validate()
}

// RedisAddr strips a redis:// scheme from RedisURI.
func (c *Config) RedisAddr() string {
	return strings.TrimPrefix(c.RedisURI, "redis://")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}
