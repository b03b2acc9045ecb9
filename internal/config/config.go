package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// MariaDB接続設定 (cmd/server). Empty DBHost selects the in-memory store.
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// サーバー設定
	ServerPort  string
	ConsolePort string
	Env         string
	LogLevel    slog.Level

	// CORS設定
	AllowedOrigins []string

	// Backend endpoints consumed by the console
	APIURL string
	WSURL  string

	// Console session
	OrganizationID string
	ClientID       string
	StatusFilter   string
	PollInterval   time.Duration
	RequestTimeout time.Duration

	// Push feed reconnection
	Reconnect    bool
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DSN returns the MySQL data source name for the configured database
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Load loads configuration from environment variables
func Load() Config {
	allowedOrigins := getenv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")

	cfg := Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getenv("DB_PORT", "3306"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		ServerPort:  getenv("SERVER_PORT", "8002"),
		ConsolePort: getenv("CONSOLE_PORT", "8080"),
		Env:         getenv("ENV", "development"),
		LogLevel:    parseLevel(os.Getenv("LOG_LEVEL")),

		AllowedOrigins: strings.Split(allowedOrigins, ","),

		APIURL: strings.TrimRight(getenv("API_URL", "http://localhost:8002/api"), "/"),
		WSURL:  strings.TrimRight(getenv("WS_URL", "ws://localhost:8002/ws"), "/"),

		OrganizationID: os.Getenv("ORGANIZATION_ID"),
		ClientID:       os.Getenv("CLIENT_ID"),
		StatusFilter:   os.Getenv("STATUS_FILTER"),
		PollInterval:   getDuration("POLL_INTERVAL", 10*time.Second),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 15*time.Second),

		Reconnect:    getBool("RECONNECT", true),
		ReconnectMin: getDuration("RECONNECT_MIN", time.Second),
		ReconnectMax: getDuration("RECONNECT_MAX", 30*time.Second),
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
