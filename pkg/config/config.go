package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Signing SigningConfig `yaml:"signing" json:"signing"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Batch   BatchConfig   `yaml:"batch" json:"batch"`
	CORS    CORSConfig    `yaml:"cors" json:"cors"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ServerConfig holds HTTP server configuration. WriteTimeout is zero by
// default so long downloads and archives are not cut off.
type ServerConfig struct {
	Host              string        `yaml:"host" json:"host" env:"SERVER_HOST"`
	Port              string        `yaml:"port" json:"port" env:"SERVER_PORT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StorageConfig holds the upload root and its limits
type StorageConfig struct {
	Root          string        `yaml:"root" json:"root" env:"UPLOAD_ROOT"`
	MaxBodyMB     int64         `yaml:"max_body_mb" json:"max_body_mb" env:"MAX_BODY_MB"`
	QuotaGB       int64         `yaml:"per_user_quota_gb" json:"per_user_quota_gb" env:"PER_USER_QUOTA_GB"`
	ChunkSize     int64         `yaml:"chunk_size" json:"chunk_size" env:"STORAGE_CHUNK_SIZE"`
	SessionTTL    time.Duration `yaml:"session_ttl" json:"session_ttl" env:"STORAGE_SESSION_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval" env:"STORAGE_SWEEP_INTERVAL"`
}

// MaxBodyBytes converts MaxBodyMB to bytes
func (s StorageConfig) MaxBodyBytes() int64 {
	return s.MaxBodyMB << 20
}

// QuotaBytes converts QuotaGB to bytes
func (s StorageConfig) QuotaBytes() int64 {
	return s.QuotaGB << 30
}

// SigningConfig holds the signed URL secret and TTL bounds
type SigningConfig struct {
	Key           string        `yaml:"key" json:"-" env:"UPLOAD_SIGNING_KEY" sensitive:"true"`
	DefaultTTL    time.Duration `yaml:"default_ttl" json:"default_ttl" env:"SIGNING_DEFAULT_TTL"`
	MaxTTL        time.Duration `yaml:"max_ttl" json:"max_ttl" env:"SIGNING_MAX_TTL"`
	PublicBaseURL string        `yaml:"public_base_url" json:"public_base_url" env:"PUBLIC_BASE_URL"`
}

// AuthConfig holds the JWT and service token settings
type AuthConfig struct {
	ServiceToken    string `yaml:"service_token" json:"-" env:"AUTH_SERVICE_TOKEN" sensitive:"true"`
	Algorithm       string `yaml:"jwt_alg" json:"jwt_alg" env:"AUTH_JWT_ALG"`
	Issuer          string `yaml:"jwt_issuer" json:"jwt_issuer" env:"AUTH_JWT_ISSUER"`
	Audience        string `yaml:"jwt_audience" json:"jwt_audience" env:"AUTH_JWT_AUDIENCE"`
	PublicKeyPath   string `yaml:"jwt_public_key_path" json:"jwt_public_key_path" env:"JWT_PUBLIC_KEY_PATH"`
	PublicKeyBase64 string `yaml:"jwt_public_key_base64" json:"-" env:"AUTH_JWT_PUBLIC_KEY_BASE64"`
	Secret          string `yaml:"jwt_secret" json:"-" env:"AUTH_JWT_SECRET" sensitive:"true"`
	KeyID           string `yaml:"jwt_kid" json:"jwt_kid" env:"AUTH_JWT_KID"`
}

// BatchConfig holds batch token and archive settings
type BatchConfig struct {
	TokenTTL      time.Duration `yaml:"token_ttl" json:"token_ttl" env:"BATCH_TOKEN_TTL"`
	Backend       string        `yaml:"backend" json:"backend" env:"BATCH_TOKEN_BACKEND"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr" env:"BATCH_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" json:"-" env:"BATCH_REDIS_PASSWORD" sensitive:"true"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db" env:"BATCH_REDIS_DB"`
	RedisPrefix   string        `yaml:"redis_prefix" json:"redis_prefix" env:"BATCH_REDIS_PREFIX"`
	SQLitePath    string        `yaml:"sqlite_path" json:"sqlite_path" env:"BATCH_SQLITE_PATH"`
	SpoolDir      string        `yaml:"spool_dir" json:"spool_dir" env:"BATCH_SPOOL_DIR"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled" env:"CORS_ENABLED"`
	AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins" env:"CORS_ORIGINS"`
	AllowedMethods   []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers" json:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers" json:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" json:"allow_credentials" env:"CORS_CREDENTIALS"`
	MaxAge           int      `yaml:"max_age" json:"max_age" env:"CORS_MAX_AGE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT"` // json, console
	Output string `yaml:"output" json:"output" env:"LOG_OUTPUT"` // stdout, stderr, or a file path
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"path" json:"path" env:"METRICS_PATH"`
}

// Logger receives the configuration summary and watcher events
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// ConfigManager manages configuration loading and validation
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watchers   []func(*Config)
	validator  *Validator
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		watchers:  make([]func(*Config), 0),
		validator: NewValidator(),
	}
}

// Load builds the configuration from defaults, then the YAML file at
// configPath if it exists, then the environment. PORT overrides
// server.port last.
func (cm *ConfigManager) Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cm.loadFromFile(config, configPath); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}

	if err := cm.validator.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.mu.Lock()
	cm.configPath = configPath
	cm.config = config
	cm.mu.Unlock()

	return config, nil
}

// Reload re-reads the configuration and notifies watchers. A failed reload
// keeps the previous configuration.
func (cm *ConfigManager) Reload() error {
	cm.mu.RLock()
	path := cm.configPath
	cm.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no config path set")
	}

	config, err := cm.Load(path)
	if err != nil {
		return err
	}

	cm.mu.RLock()
	watchers := append(([]func(*Config))(nil), cm.watchers...)
	cm.mu.RUnlock()
	for _, watcher := range watchers {
		watcher(config)
	}
	return nil
}

// Watch adds a configuration change watcher
func (cm *ConfigManager) Watch(watcher func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigPath returns the file the configuration was loaded from
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// loadFromFile loads configuration from a YAML file
func (cm *ConfigManager) loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// loadFromEnv loads configuration from environment variables
func (cm *ConfigManager) loadFromEnv(config *Config) error {
	return cm.setEnvVars(reflect.ValueOf(config).Elem())
}

// setEnvVars recursively sets environment variables on struct fields
func (cm *ConfigManager) setEnvVars(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			// Recurse into nested structs
			if field.Kind() == reflect.Struct {
				if err := cm.setEnvVars(field); err != nil {
					return err
				}
			}
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := cm.setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldValue sets a field value from an environment variable string.
// Durations accept Go syntax or a bare number of seconds.
func (cm *ConfigManager) setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := parseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			var intValue int64
			if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
				return err
			}
			field.SetInt(intValue)
		}
	case reflect.Bool:
		boolValue := value == "true" || value == "1" || value == "yes" || value == "on"
		field.SetBool(boolValue)
	case reflect.Slice:
		// Handle comma-separated values for slices
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(value, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(values))
		}
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

func parseDuration(value string) (time.Duration, error) {
	var seconds int64
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil && fmt.Sprint(seconds) == value {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       0,
			WriteTimeout:      0,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Root:          "./uploads",
			MaxBodyMB:     5120,
			QuotaGB:       500,
			ChunkSize:     1024 * 1024,
			SessionTTL:    24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Signing: SigningConfig{
			DefaultTTL: time.Hour,
			MaxTTL:     7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			Algorithm: "RS256",
		},
		Batch: BatchConfig{
			TokenTTL:    time.Hour,
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "filevault:batch:",
			SQLitePath:  "./batch_tokens.db",
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Range", "X-Service-Token", "X-Request-ID"},
			ExposedHeaders: []string{
				"Accept-Ranges", "Content-Disposition", "Content-Length", "Content-Range",
				"X-Request-ID", "X-Content-Length-Estimate",
			},
			MaxAge: 86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// SecretHash renders a secret as the first 8 bytes of its sha256 so logs can
// tell secrets apart without revealing them.
func SecretHash(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:8])
}

// LogSummary logs a summary of the configuration without sensitive data
func LogSummary(config *Config, logger Logger) {
	fields := []interface{}{
		"addr", config.Server.Addr(),
		"upload_root", config.Storage.Root,
		"max_body_mb", config.Storage.MaxBodyMB,
		"per_user_quota_gb", config.Storage.QuotaGB,
		"batch_backend", config.Batch.Backend,
		"jwt_alg", config.Auth.Algorithm,
		"metrics", config.Metrics.Enabled,
	}
	if config.Signing.Key != "" {
		fields = append(fields, "signing_key_hash", SecretHash(config.Signing.Key))
	}
	if config.Auth.ServiceToken != "" {
		fields = append(fields, "service_token_hash", SecretHash(config.Auth.ServiceToken))
	}
	if config.Auth.Secret != "" {
		fields = append(fields, "jwt_secret_hash", SecretHash(config.Auth.Secret))
	}
	logger.Info("configuration loaded", fields...)

	if config.Signing.Key == "" {
		logger.Warn("UPLOAD_SIGNING_KEY is not set, signed URLs use the default key")
	}
	if config.Auth.ServiceToken == "" {
		logger.Warn("AUTH_SERVICE_TOKEN is not set, service authentication is disabled")
	}
}
