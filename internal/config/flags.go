package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
)

// ServerFlags registers the reference backend's command-line overrides on fs.
// Values default to what Load read from the environment.
func (c *Config) ServerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ServerPort, "port", c.ServerPort, "HTTP port of the chat API")
	fs.StringVar(&c.DBHost, "db-host", c.DBHost, "MySQL/MariaDB host (empty uses the in-memory store)")
	fs.StringVar(&c.DBName, "db-name", c.DBName, "database name")
	fs.StringSliceVar(&c.AllowedOrigins, "allowed-origins", c.AllowedOrigins, "origins allowed for CORS and websocket upgrades")
	c.commonFlags(fs)
}

// ConsoleFlags registers the console's command-line overrides on fs.
func (c *Config) ConsoleFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConsolePort, "port", c.ConsolePort, "HTTP port of the console")
	fs.StringVar(&c.APIURL, "api-url", c.APIURL, "base URL of the chat REST API")
	fs.StringVar(&c.WSURL, "ws-url", c.WSURL, "base URL of the push channel")
	fs.StringVarP(&c.OrganizationID, "org", "o", c.OrganizationID, "organization whose conversations are shown")
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "push channel client id (random when empty)")
	fs.StringVar(&c.StatusFilter, "status", c.StatusFilter, "only list conversations with this status")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "conversation list refresh interval")
	fs.BoolVar(&c.Reconnect, "reconnect", c.Reconnect, "redial the push channel after it drops")
	fs.StringSliceVar(&c.AllowedOrigins, "allowed-origins", c.AllowedOrigins, "origins allowed to open the dashboard websocket")
	c.commonFlags(fs)
}

func (c *Config) commonFlags(fs *pflag.FlagSet) {
	fs.Var((*levelValue)(&c.LogLevel), "log-level", "debug, info, warn or error")
	fs.StringVar(&c.Env, "env", c.Env, "environment name")
}

// Normalize trims the values flags may have changed
func (c *Config) Normalize() {
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	c.WSURL = strings.TrimRight(c.WSURL, "/")
	for i := range c.AllowedOrigins {
		c.AllowedOrigins[i] = strings.TrimSpace(c.AllowedOrigins[i])
	}
}

// levelValue adapts slog.Level to pflag.Value
type levelValue slog.Level

func (l *levelValue) String() string { return slog.Level(*l).String() }

func (l *levelValue) Set(s string) error {
	return (*slog.Level)(l).UnmarshalText([]byte(strings.TrimSpace(s)))
}

func (l *levelValue) Type() string { return "level" }
