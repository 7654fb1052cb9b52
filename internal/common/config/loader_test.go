package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: requests
    user: app
  redis:
    address: localhost:6379
project:
  id: demo-project
notifications:
  fcm_topic_arn: arn:aws:sns:us-east-1:123456789012:sendFcm
workers:
  request-created:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	t.Setenv("FRONTEND_URL", "")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "request-workers", cfg.App.Name)
	assert.Equal(t, 8080, cfg.App.HTTPPort)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "Request Created", cfg.Notifications.Message)
	assert.Equal(t, DispatchPolicyFailFast, cfg.Dispatch.Policy)
	assert.Equal(t, 86400, cfg.Dedupe.TTL)
	assert.Equal(t, 3, cfg.Mail.MaxAttempts)
	assert.Equal(t, "info", cfg.Logging.Level)

	w := cfg.Workers["request-created"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 3, w.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_FRONTEND", "requests.example.com")

	body := `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: requests
    user: app
  redis:
    address: localhost:6379
project:
  id: demo-project
  frontend_url: ${TEST_FRONTEND}
notifications:
  fcm_topic_arn: arn:aws:sns:us-east-1:123456789012:sendFcm
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "requests.example.com", cfg.Project.FrontendURL)
}

func TestLoadFromFile_ProjectIDFromEnvironment(t *testing.T) {
	t.Setenv("GCLOUD_PROJECT", "env-project")

	body := `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: requests
    user: app
  redis:
    address: localhost:6379
notifications:
  fcm_topic_arn: arn:aws:sns:us-east-1:123456789012:sendFcm
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "env-project", cfg.Project.ID)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Camunda.BrokerAddress = "localhost:26500"
		cfg.Database.Postgres.Host = "localhost"
		cfg.Database.Postgres.Database = "requests"
		cfg.Database.Postgres.User = "app"
		cfg.Database.Redis.Address = "localhost:6379"
		cfg.Project.ID = "demo"
		cfg.Notifications.FCMTopicARN = "arn:topic"
		cfg.Dispatch.Policy = DispatchPolicyFailFast
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "best effort", mutate: func(c *Config) { c.Dispatch.Policy = DispatchPolicyBestEffort }},
		{name: "missing broker", mutate: func(c *Config) { c.Camunda.BrokerAddress = "" }, wantErr: "camunda.broker_address"},
		{name: "missing project", mutate: func(c *Config) { c.Project.ID = "" }, wantErr: "project.id"},
		{name: "missing topic", mutate: func(c *Config) { c.Notifications.FCMTopicARN = "" }, wantErr: "fcm_topic_arn"},
		{name: "unknown policy", mutate: func(c *Config) { c.Dispatch.Policy = "sometimes" }, wantErr: "dispatch.policy"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Dispatch.MaxConcurrency = -1 }, wantErr: "max_concurrency"},
		{name: "mail without sender", mutate: func(c *Config) { c.Mail.Enabled = true }, wantErr: "mail.from_email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{}
	w := GetWorkerConfig(cfg, "unknown")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
}
