package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - name: prod
    provider: aws
    region: us-east-1
    profile: prod-admin
  - name: corp
    provider: azure
    subscription_id: 00000000-0000-0000-0000-000000000000
engine:
  max_concurrency: 10
  control_timeout: 30s
evidence:
  bucket: sentry-evidence
storage:
  db_path: /var/lib/sentry/sentry.db
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Accounts, 2)
	assert.Equal(t, 10, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Engine.ControlTimeout)
	assert.Equal(t, "sentry-evidence", cfg.Evidence.Bucket)
	assert.Equal(t, "/var/lib/sentry/sentry.db", cfg.Storage.DbPath)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	acc, err := cfg.GetAccount("prod")
	require.NoError(t, err)
	assert.Equal(t, "aws", acc.Provider)
	assert.Equal(t, "prod-admin", acc.Profile)

	_, err = cfg.GetAccount("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - name: prod
    provider: aws
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.Engine.ControlTimeout)
}

func TestLoadConfig_NoAccounts(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_concurrency: 3
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
