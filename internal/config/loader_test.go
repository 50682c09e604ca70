package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
database:
  postgres:
    host: db
    port: 5432
    user: postgres
    password: password
    dbname: sydneytrains
    sslmode: disable
moderation:
  community: r/SydneyTrains
  dry_run: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "SydneyTrains", cfg.Moderation.Community)
	assert.True(t, cfg.Moderation.DryRun)
	assert.Equal(t, "reddit", cfg.Moderation.Source)
	assert.Equal(t, "postgres", cfg.Moderation.WindowBackend)
	assert.Equal(t, "automod", cfg.Moderation.RulesDocument)
	assert.Equal(t, "tiers", cfg.Moderation.TiersDocument)
	assert.Equal(t, "file", cfg.Documents.Backend)
	assert.Equal(t, 50, cfg.Dashboard.PageSize)
	assert.Equal(t, 5*time.Second, cfg.Moderation.PollInterval)
}

func TestLoadConfigLegacyEnvironment(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "legacy-id")
	t.Setenv("SUBREDDIT_NAME", "Melbourne")
	t.Setenv("TEST_MODE", "false")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "legacy-id", cfg.Platform.ClientID)
	assert.Equal(t, "Melbourne", cfg.Moderation.Community)
	assert.False(t, cfg.Moderation.DryRun)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
