package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ConfigYAML(t *testing.T) {
	path := filepath.Join("..", "..", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Database.Host)
	assert.NotZero(t, cfg.RabbitMQ.Port)
	assert.NotZero(t, cfg.Redis.Port)
	assert.Equal(t, GatewaySandbox, cfg.Gateway.Mode)
	assert.NotEmpty(t, cfg.Notifications.Coordinators)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
gateway:
  mode: sandbox
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Notifications.MaxRetries)
	assert.Equal(t, 120, cfg.Payments.SweepIntervalSeconds)
	assert.True(t, cfg.Payments.ConsumeAttemptOnReject)
	assert.Equal(t, 15, cfg.Gateway.TimeoutSeconds)
}

func TestLoad_InvalidGatewayMode(t *testing.T) {
	path := writeConfig(t, `
gateway:
  mode: staging
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.mode")
}

func TestLoad_LiveModeRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, `
gateway:
  mode: live
  merchant_id: m
  secret: s
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestLoad_RecipientLists(t *testing.T) {
	path := writeConfig(t, `
notifications:
  coordinators: a@example.com, b@example.com
  observers: c@example.com
  extra_recipients:
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Notifications.Coordinators)
	assert.Equal(t, []string{"c@example.com"}, cfg.Notifications.Observers)
	assert.Empty(t, cfg.Notifications.ExtraRecipients)
}

func TestLoad_EmptyValuedKeyKeepsSection(t *testing.T) {
	path := writeConfig(t, `
notifications:
  coordinators: coord@catering.example.com
  extra_recipients:
  max_retries: 7
payments:
  sweep_interval_seconds: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// keys after the empty-valued one still land in their section
	assert.Empty(t, cfg.Notifications.ExtraRecipients)
	assert.Equal(t, 7, cfg.Notifications.MaxRetries)
	assert.Equal(t, 30, cfg.Payments.SweepIntervalSeconds)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
payments:
  retries: 5
`)

	_, err := Load(path)
	require.Error(t, err)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
