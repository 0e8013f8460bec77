package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "licensegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with secret from env",
			env:  map[string]string{"LICENSEGATE_LICENSE_TOKEN_SECRET": testSecret},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "HS256", cfg.License.Algorithm)
				assert.Equal(t, 3, cfg.License.WarningThresholdDays)
				assert.Equal(t, 2, cfg.Queue.Workers)
				assert.Equal(t, 2.0, cfg.Queue.Retry.Multiplier)
				assert.True(t, filepath.IsAbs(cfg.License.DataDir))
				assert.Equal(t, filepath.Join(cfg.License.DataDir, QueueSnapshotName), cfg.Queue.SnapshotFile)
			},
		},
		{
			name: "file overrides defaults",
			file: `
server:
  port: 9191
license:
  token_secret: ` + testSecret + `
  algorithm: hs512
  app_id: desktop-test
queue:
  workers: 6
  retry:
    max_retries: 5
    multiplier: 3
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9191, cfg.Server.Port)
				assert.Equal(t, "HS512", cfg.License.Algorithm)
				assert.Equal(t, "desktop-test", cfg.License.AppID)
				assert.Equal(t, 6, cfg.Queue.Workers)
				assert.Equal(t, 5, cfg.Queue.Retry.MaxRetries)
				assert.Equal(t, 3.0, cfg.Queue.Retry.Multiplier)
				// untouched keys keep their defaults
				assert.Equal(t, time.Second, cfg.Queue.Retry.InitialDelay)
				assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
			},
		},
		{
			name: "env overrides file",
			file: `
server:
  port: 9191
license:
  token_secret: ` + testSecret + `
`,
			env: map[string]string{
				"LICENSEGATE_SERVER_PORT":                    "9292",
				"LICENSEGATE_LICENSE_NETWORK_TIMEOUT":        "3s",
				"LICENSEGATE_SECURITY_ALLOWED_ORIGINS":       "http://a.test,http://b.test",
				"LICENSEGATE_LICENSE_WARNING_THRESHOLD_DAYS": "5",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9292, cfg.Server.Port)
				assert.Equal(t, 3*time.Second, cfg.License.NetworkTimeout)
				assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
				assert.Equal(t, 5, cfg.License.WarningThresholdDays)
			},
		},
		{
			name:    "missing secret",
			wantErr: "token secret",
		},
		{
			name: "unsupported algorithm",
			env: map[string]string{
				"LICENSEGATE_LICENSE_TOKEN_SECRET": testSecret,
				"LICENSEGATE_LICENSE_ALGORITHM":    "RS256",
			},
			wantErr: "unsupported token algorithm",
		},
		{
			name:    "malformed yaml",
			file:    "server: [unterminated",
			wantErr: "failed to load config from file",
		},
		{
			name: "invalid env value",
			env: map[string]string{
				"LICENSEGATE_LICENSE_TOKEN_SECRET": testSecret,
				"LICENSEGATE_QUEUE_WORKERS":        "many",
			},
			wantErr: "failed to load config from env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LICENSEGATE_LICENSE_DATA_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "absent.yaml")
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.License.TokenSecret = testSecret
		return cfg
	}

	t.Run("defaults plus secret are valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("logging output normalised", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Output = "syslog"
		cfg.Logging.Format = "text"
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "console", cfg.Logging.Output)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"no workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"negative retries", func(c *Config) { c.Queue.MaxRetries = -1 }},
		{"zero processing timeout", func(c *Config) { c.Queue.ProcessingTimeout = 0 }},
		{"shrinking backoff", func(c *Config) { c.License.Retry.Multiplier = 0.5 }},
		{"empty app id", func(c *Config) { c.License.AppID = "" }},
		{"negative warning threshold", func(c *Config) { c.License.WarningThresholdDays = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLicenseConfigPaths(t *testing.T) {
	l := LicenseConfig{DataDir: "/var/lib/licensegate"}
	assert.Equal(t, "/var/lib/licensegate/license_cache.json", l.CacheFile())
	assert.Equal(t, "/var/lib/licensegate/offline_state.json", l.OfflineStateFile())
}

func TestEnsureDirectories(t *testing.T) {
	cfg := Default()
	cfg.License.DataDir = filepath.Join(t.TempDir(), "nested", "data")
	require.NoError(t, cfg.EnsureDirectories())
	info, err := os.Stat(cfg.License.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
