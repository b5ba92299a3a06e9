package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string
	// DatabasePath is the SQLite database file path.
	DatabasePath string
	// EmbedSecret signs embed-scoped session tokens (visitors and
	// widget-scoped staff).
	EmbedSecret string
	// PlatformSecret signs platform-wide staff tokens.
	PlatformSecret string
	// EmbedTokenTTLSeconds is the lifetime of issued embed session tokens.
	EmbedTokenTTLSeconds int64
	Debug                bool
	AllowedOrigins       []string
}

// EmbedTokenTTL returns the embed token lifetime as a duration.
func (c *Config) EmbedTokenTTL() time.Duration {
	return time.Duration(c.EmbedTokenTTLSeconds) * time.Second
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr           *string
	DatabasePath   *string
	EmbedSecret    *string
	PlatformSecret *string
	Debug          *bool
}

// Load loads server configuration from environment variables and applies any
// explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	port := 3001
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./chat.db"
	}
	if overrides.DatabasePath != nil {
		dbPath = *overrides.DatabasePath
	}

	embedSecret := os.Getenv("EMBED_JWT_SECRET")
	if overrides.EmbedSecret != nil {
		embedSecret = *overrides.EmbedSecret
	}
	if embedSecret == "" {
		return nil, fmt.Errorf("EMBED_JWT_SECRET environment variable is required")
	}

	platformSecret := os.Getenv("APP_JWT_SECRET")
	if overrides.PlatformSecret != nil {
		platformSecret = *overrides.PlatformSecret
	}
	if platformSecret == "" {
		return nil, fmt.Errorf("APP_JWT_SECRET environment variable is required")
	}

	tokenTTL := int64(86400)
	if ttlStr := os.Getenv("EMBED_TOKEN_TTL"); ttlStr != "" {
		if ttl, err := strconv.ParseInt(ttlStr, 10, 64); err == nil && ttl > 0 {
			tokenTTL = ttl
		}
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	return &Config{
		Addr:                 addr,
		DatabasePath:         dbPath,
		EmbedSecret:          embedSecret,
		PlatformSecret:       platformSecret,
		EmbedTokenTTLSeconds: tokenTTL,
		Debug:                debug,
		// Socket handshakes and embed session requests are validated
		// per-widget against its allowed origin list.
		AllowedOrigins: []string{"*"},
	}, nil
}
