package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zots0127/filevault/pkg/logger"
)

// Validator provides configuration validation functions
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig performs comprehensive configuration validation
func (v *Validator) ValidateConfig(config *Config) error {
	if err := v.validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	if err := v.validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config validation failed: %w", err)
	}

	if err := v.validateSigningConfig(&config.Signing); err != nil {
		return fmt.Errorf("signing config validation failed: %w", err)
	}

	if err := v.validateAuthConfig(&config.Auth); err != nil {
		return fmt.Errorf("auth config validation failed: %w", err)
	}

	if err := v.validateBatchConfig(&config.Batch); err != nil {
		return fmt.Errorf("batch config validation failed: %w", err)
	}

	if err := v.validateCORSConfig(&config.CORS); err != nil {
		return fmt.Errorf("CORS config validation failed: %w", err)
	}

	if err := v.validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	if err := v.validateMetricsConfig(&config.Metrics); err != nil {
		return fmt.Errorf("metrics config validation failed: %w", err)
	}

	return nil
}

// validateServerConfig validates server configuration. Zero read and write
// timeouts mean no limit.
func (v *Validator) validateServerConfig(config *ServerConfig) error {
	if config.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	port, err := strconv.Atoi(config.Port)
	if err != nil {
		return fmt.Errorf("invalid server port: %s", config.Port)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	timeouts := map[string]time.Duration{
		"read_header_timeout": config.ReadHeaderTimeout,
		"read_timeout":        config.ReadTimeout,
		"write_timeout":       config.WriteTimeout,
		"idle_timeout":        config.IdleTimeout,
		"shutdown_timeout":    config.ShutdownTimeout,
	}
	for name, d := range timeouts {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if config.ShutdownTimeout == 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	return nil
}

// validateStorageConfig validates storage configuration
func (v *Validator) validateStorageConfig(config *StorageConfig) error {
	if strings.TrimSpace(config.Root) == "" {
		return fmt.Errorf("upload root cannot be empty")
	}

	if config.MaxBodyMB <= 0 {
		return fmt.Errorf("max body size must be positive")
	}

	if config.QuotaGB <= 0 {
		return fmt.Errorf("per-user quota must be positive")
	}

	if config.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}

	if config.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	if config.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	return nil
}

// validateSigningConfig validates signed URL configuration
func (v *Validator) validateSigningConfig(config *SigningConfig) error {
	if config.DefaultTTL < time.Second {
		return fmt.Errorf("default ttl must be at least 1s")
	}

	if config.MaxTTL < config.DefaultTTL {
		return fmt.Errorf("max ttl %s is shorter than default ttl %s", config.MaxTTL, config.DefaultTTL)
	}

	if config.PublicBaseURL != "" {
		u, err := url.Parse(config.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid public base URL: %s", config.PublicBaseURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("public base URL must use http or https")
		}
	}

	return nil
}

// validateAuthConfig validates JWT verification settings
func (v *Validator) validateAuthConfig(config *AuthConfig) error {
	switch strings.ToUpper(config.Algorithm) {
	case "RS256", "":
	case "HS256":
		if config.Secret == "" {
			return fmt.Errorf("jwt secret is required for HS256")
		}
	default:
		return fmt.Errorf("unsupported jwt algorithm: %s", config.Algorithm)
	}

	if config.ServiceToken != "" && len(config.ServiceToken) < 16 {
		return fmt.Errorf("service token must be at least 16 characters")
	}

	return nil
}

// validateBatchConfig validates the batch token backend
func (v *Validator) validateBatchConfig(config *BatchConfig) error {
	if config.TokenTTL <= 0 {
		return fmt.Errorf("batch token ttl must be positive")
	}

	switch config.Backend {
	case "memory":
	case "redis":
		if config.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
		if config.RedisDB < 0 {
			return fmt.Errorf("redis db cannot be negative")
		}
	case "sqlite":
		if config.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid batch token backend: %s, must be one of memory, redis, sqlite", config.Backend)
	}

	return nil
}

// validateCORSConfig validates CORS configuration
func (v *Validator) validateCORSConfig(config *CORSConfig) error {
	if !config.Enabled {
		return nil
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin is required when CORS is enabled")
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			if config.AllowCredentials {
				return fmt.Errorf("wildcard origin cannot be combined with credentials")
			}
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("invalid CORS origin: %s", origin)
		}
	}

	if config.MaxAge < 0 {
		return fmt.Errorf("CORS max age cannot be negative")
	}

	return nil
}

// validateLoggingConfig validates logging configuration
func (v *Validator) validateLoggingConfig(config *LoggingConfig) error {
	if _, err := logger.ParseLevel(config.Level); err != nil {
		return err
	}

	switch config.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s, must be json or console", config.Format)
	}

	if config.Output == "" {
		return fmt.Errorf("log output cannot be empty")
	}

	return nil
}

// validateMetricsConfig validates metrics configuration
func (v *Validator) validateMetricsConfig(config *MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	if !strings.HasPrefix(config.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}

	return nil
}
