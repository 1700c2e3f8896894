package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedLog struct {
	level string
	msg   string
	kv    []interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []capturedLog
}

func (l *recordingLogger) add(level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, capturedLog{level: level, msg: msg, kv: kv})
}

func (l *recordingLogger) Info(msg string, kv ...interface{})  { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...interface{})  { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...interface{}) { l.add("error", msg, kv) }

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.msg
	}
	return out
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestConfigManager_Load(t *testing.T) {
	tests := []struct {
		name          string
		configFile    string
		envVars       map[string]string
		expectedError bool
		validate      func(*testing.T, *Config)
	}{
		{
			name: "Default config",
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, "8080", config.Server.Port)
				assert.Equal(t, "./uploads", config.Storage.Root)
				assert.Equal(t, int64(5120)<<20, config.Storage.MaxBodyBytes())
				assert.Equal(t, int64(500)<<30, config.Storage.QuotaBytes())
				assert.Equal(t, time.Hour, config.Signing.DefaultTTL)
				assert.Equal(t, 7*24*time.Hour, config.Signing.MaxTTL)
				assert.Equal(t, "RS256", config.Auth.Algorithm)
				assert.Equal(t, "memory", config.Batch.Backend)
				assert.Equal(t, time.Duration(0), config.Server.WriteTimeout)
			},
		},
		{
			name: "File config",
			configFile: `
server:
  port: "9090"
  shutdown_timeout: 5s
storage:
  root: /data/uploads
  per_user_quota_gb: 10
batch:
  backend: sqlite
  sqlite_path: /data/batch.db
`,
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, "9090", config.Server.Port)
				assert.Equal(t, 5*time.Second, config.Server.ShutdownTimeout)
				assert.Equal(t, "/data/uploads", config.Storage.Root)
				assert.Equal(t, int64(10), config.Storage.QuotaGB)
				assert.Equal(t, "sqlite", config.Batch.Backend)
				assert.Equal(t, int64(5120), config.Storage.MaxBodyMB, "unset keys keep defaults")
			},
		},
		{
			name: "Environment override",
			configFile: `
storage:
  root: /data/uploads
`,
			envVars: map[string]string{
				"SERVER_PORT":         "8081",
				"UPLOAD_ROOT":         "/tmp/uploads",
				"MAX_BODY_MB":         "64",
				"UPLOAD_SIGNING_KEY":  "s3cret",
				"SIGNING_MAX_TTL":     "3600",
				"BATCH_TOKEN_TTL":     "90m",
				"LOG_LEVEL":           "debug",
				"METRICS_ENABLED":     "false",
				"CORS_ORIGINS":        "https://a.example, https://b.example",
				"SIGNING_DEFAULT_TTL": "60",
			},
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, "8081", config.Server.Port)
				assert.Equal(t, "/tmp/uploads", config.Storage.Root)
				assert.Equal(t, int64(64), config.Storage.MaxBodyMB)
				assert.Equal(t, "s3cret", config.Signing.Key)
				assert.Equal(t, time.Hour, config.Signing.MaxTTL)
				assert.Equal(t, time.Minute, config.Signing.DefaultTTL)
				assert.Equal(t, 90*time.Minute, config.Batch.TokenTTL)
				assert.Equal(t, "debug", config.Logging.Level)
				assert.False(t, config.Metrics.Enabled)
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.CORS.AllowedOrigins)
			},
		},
		{
			name:    "PORT wins over SERVER_PORT",
			envVars: map[string]string{"SERVER_PORT": "8081", "PORT": "7000"},
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, "7000", config.Server.Port)
			},
		},
		{
			name:          "Invalid env value",
			envVars:       map[string]string{"MAX_BODY_MB": "lots"},
			expectedError: true,
		},
		{
			name:          "Invalid backend",
			configFile:    "batch:\n  backend: etcd\n",
			expectedError: true,
		},
		{
			name:          "Malformed yaml",
			configFile:    "server: [",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewConfigManager()

			path := ""
			if tt.configFile != "" {
				path = writeConfig(t, tt.configFile)
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			config, err := cm.Load(path)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			assert.Same(t, config, cm.GetConfig())
			if tt.validate != nil {
				tt.validate(t, config)
			}
		})
	}
}

func TestConfigManager_MissingFileUsesDefaults(t *testing.T) {
	cm := NewConfigManager()
	config, err := cm.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Storage, config.Storage)
}

func TestConfigManager_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		errorContains string
	}{
		{name: "Valid config", mutate: func(*Config) {}},
		{name: "Bad port", mutate: func(c *Config) { c.Server.Port = "70000" }, errorContains: "port"},
		{name: "Empty root", mutate: func(c *Config) { c.Storage.Root = " " }, errorContains: "upload root"},
		{name: "Zero quota", mutate: func(c *Config) { c.Storage.QuotaGB = 0 }, errorContains: "quota"},
		{name: "Max ttl below default", mutate: func(c *Config) { c.Signing.MaxTTL = time.Minute }, errorContains: "max ttl"},
		{name: "Relative base url", mutate: func(c *Config) { c.Signing.PublicBaseURL = "files.example" }, errorContains: "base URL"},
		{name: "HS256 without secret", mutate: func(c *Config) { c.Auth.Algorithm = "HS256" }, errorContains: "secret"},
		{name: "Unknown algorithm", mutate: func(c *Config) { c.Auth.Algorithm = "none" }, errorContains: "algorithm"},
		{name: "Short service token", mutate: func(c *Config) { c.Auth.ServiceToken = "abc" }, errorContains: "service token"},
		{name: "Redis without address", mutate: func(c *Config) { c.Batch.Backend = "redis"; c.Batch.RedisAddr = "" }, errorContains: "redis"},
		{name: "Wildcard with credentials", mutate: func(c *Config) { c.CORS.AllowCredentials = true }, errorContains: "wildcard"},
		{name: "Bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, errorContains: "log level"},
		{name: "Bad metrics path", mutate: func(c *Config) { c.Metrics.Path = "metrics" }, errorContains: "metrics path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := NewValidator().ValidateConfig(config)
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestConfigManager_ReloadNotifiesWatchers(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	cm := NewConfigManager()
	_, err := cm.Load(path)
	require.NoError(t, err)

	var seen []string
	cm.Watch(func(c *Config) { seen = append(seen, c.Logging.Level) })

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))
	require.NoError(t, cm.Reload())
	assert.Equal(t, []string{"debug"}, seen)
	assert.Equal(t, "debug", cm.GetConfig().Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644))
	assert.Error(t, cm.Reload())
	assert.Equal(t, "debug", cm.GetConfig().Logging.Level, "failed reload keeps the previous config")
	assert.Len(t, seen, 1)

	assert.Error(t, NewConfigManager().Reload())
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	cm := NewConfigManager()
	_, err := cm.Load(path)
	require.NoError(t, err)

	reloaded := make(chan string, 4)
	cm.Watch(func(c *Config) { reloaded <- c.Logging.Level })

	log := &recordingLogger{}
	watcher, err := NewConfigWatcher(cm, log)
	require.NoError(t, err)
	watcher.SetDebounceTime(20 * time.Millisecond)
	watcher.Start()
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644))

	select {
	case level := <-reloaded:
		assert.Equal(t, "warn", level)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Eventually(t, func() bool {
		for _, m := range log.messages() {
			if m == "configuration reloaded" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	watcher.Stop()
	watcher.Stop()
}

func TestNewConfigWatcher_RequiresPath(t *testing.T) {
	_, err := NewConfigWatcher(NewConfigManager(), &recordingLogger{})
	assert.Error(t, err)
}

func TestLogSummary(t *testing.T) {
	log := &recordingLogger{}
	config := DefaultConfig()
	LogSummary(config, log)
	assert.Equal(t, []string{
		"configuration loaded",
		"UPLOAD_SIGNING_KEY is not set, signed URLs use the default key",
		"AUTH_SERVICE_TOKEN is not set, service authentication is disabled",
	}, log.messages())

	log = &recordingLogger{}
	config.Signing.Key = "super-secret-signing-key"
	config.Auth.ServiceToken = "service-token-0123456789"
	LogSummary(config, log)
	require.Len(t, log.entries, 1)

	kv := log.entries[0].kv
	assert.Contains(t, kv, SecretHash("super-secret-signing-key"))
	assert.NotContains(t, kv, "super-secret-signing-key")
	assert.Len(t, SecretHash("x"), 16)
}
