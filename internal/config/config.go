// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Passkey   PasskeyConfig   `yaml:"passkey"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Health    HealthConfig    `yaml:"health"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ShutdownTimeout bounds graceful shutdown. Defaults to 30s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PasskeyConfig contains the relying party settings
type PasskeyConfig struct {
	RPID                    string        `yaml:"rp_id"`
	RPDisplayName           string        `yaml:"rp_display_name"`
	RPOrigins               []string      `yaml:"rp_origins"`
	UserVerification        string        `yaml:"user_verification"`
	Attestation             string        `yaml:"attestation"`
	ResidentKey             string        `yaml:"resident_key"`
	AuthenticatorAttachment string        `yaml:"authenticator_attachment"`
	ChallengeTTL            time.Duration `yaml:"challenge_ttl"`
	SweepInterval           time.Duration `yaml:"sweep_interval"`
}

// SessionConfig controls session token issuance after authentication
type SessionConfig struct {
	Enabled bool `yaml:"enabled"`

	// KeyFile is a PEM-encoded private key used to sign tokens.
	KeyFile string `yaml:"key_file"`

	Issuer   string        `yaml:"issuer"`
	Audience []string      `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl"`
	KeyID    string        `yaml:"key_id"`
}

// StorageConfig controls the credential store backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // sqlite, memory
	Path    string `yaml:"path"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSConfig controls TLS/SSL settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Client certificate verification (mTLS)
	ClientAuth string   `yaml:"client_auth"` // none, request, require, verify, require_and_verify
	ClientCAs  []string `yaml:"client_cas"`  // Additional client CA certificates

	// TLS version and cipher suites
	MinVersion   string   `yaml:"min_version"`   // TLS1.2, TLS1.3
	MaxVersion   string   `yaml:"max_version"`   // TLS1.2, TLS1.3
	CipherSuites []string `yaml:"cipher_suites"` // Specific cipher suites to allow
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls health check endpoints
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxPendingChallenges degrades readiness when the outstanding
	// challenge count exceeds it. Zero disables the backlog check.
	MaxPendingChallenges int `yaml:"max_pending_challenges"`
}

// Default returns a configuration with sensible defaults for local
// development. Production deployments load a YAML file instead.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8443,
			ShutdownTimeout: 30 * time.Second,
		},
		Passkey: PasskeyConfig{
			RPID:          "localhost",
			RPDisplayName: "Passkey Service",
			RPOrigins:     []string{"http://localhost:8443"},
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "passkey.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// Read the config file
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML on top of defaults so partial files work
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server settings
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSKEY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Relying party
	if rpID := os.Getenv("PASSKEY_RP_ID"); rpID != "" {
		cfg.Passkey.RPID = rpID
	}
	if origins := os.Getenv("PASSKEY_RP_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Passkey.RPOrigins = parts
	}

	// Logging
	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Storage
	if path := os.Getenv("PASSKEY_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	// Session signing key
	if keyFile := os.Getenv("PASSKEY_SESSION_KEY_FILE"); keyFile != "" {
		cfg.Session.KeyFile = keyFile
		cfg.Session.Enabled = true
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Relying party settings are delegated to the passkey package
	if err := c.ToPasskeyConfig().Validate(); err != nil {
		return fmt.Errorf("invalid passkey configuration: %w", err)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	// Validate storage
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s (must be sqlite or memory)", c.Storage.Backend)
	}

	// Validate session settings
	if c.Session.Enabled && c.Session.KeyFile == "" {
		return fmt.Errorf("session key_file is required when sessions are enabled")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	return nil
}

// ToPasskeyConfig converts the relying party section into the passkey
// package's configuration type.
func (c *Config) ToPasskeyConfig() *passkey.Config {
	return &passkey.Config{
		RPID:                    c.Passkey.RPID,
		RPDisplayName:           c.Passkey.RPDisplayName,
		RPOrigins:               c.Passkey.RPOrigins,
		UserVerification:        c.Passkey.UserVerification,
		AttestationPreference:   c.Passkey.Attestation,
		ResidentKeyRequirement:  c.Passkey.ResidentKey,
		AuthenticatorAttachment: c.Passkey.AuthenticatorAttachment,
		ChallengeTTL:            c.Passkey.ChallengeTTL,
		SweepInterval:           c.Passkey.SweepInterval,
	}
}
