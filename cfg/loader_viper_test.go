package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMode(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mode.yaml"), []byte(body), 0o644))
	return dir
}

func TestViperLoaderReadsFileAndDefaults(t *testing.T) {
	dir := writeMode(t, `
database:
  driver: sqlite
  dsn: test.sqlite
ingest:
  pages: 3
  request_timeout: 5s
providers:
  github:
    per_page: 500
`)
	loader, err := NewViperLoader(false, dir)
	require.NoError(t, err)

	config, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", config.Database.Driver)
	assert.Equal(t, 3, config.Ingest.Pages)
	assert.Equal(t, 5*time.Second, config.Ingest.RequestTimeout)
	assert.Equal(t, 100, config.Providers.Github.PerPage, "per page is capped at the provider maximum")
	assert.Len(t, config.Providers.Github.Queries, 4)
	assert.Equal(t, []string{"dotfiles"}, config.Providers.Codeberg.Queries)
	assert.Equal(t, 8080, config.Http.Port)
}

func TestViperLoaderEnvOverrides(t *testing.T) {
	dir := writeMode(t, "ingest:\n  pages: 3\n")
	t.Setenv("GITHUB_API_KEY", "gh-token")
	t.Setenv("POSTGRES_URL", "postgres://u:p@db/dothub")
	t.Setenv("INGEST_PAGES", "7")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	loader, err := NewViperLoader(false, dir)
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "gh-token", config.Providers.Github.AccessToken)
	assert.Equal(t, "postgres://u:p@db/dothub", config.Database.Dsn)
	assert.Equal(t, 7, config.Ingest.Pages)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, config.Kafka.Brokers)
}

func TestViperLoaderWithoutFile(t *testing.T) {
	loader, err := NewViperLoader(false, t.TempDir())
	require.NoError(t, err)

	config, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 10, config.Ingest.Pages)
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.False(t, loader.IsWatchChange())
}

func TestMockLoader(t *testing.T) {
	loader, _ := NewMockLoader()
	config, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", config.Database.Driver)
	assert.Equal(t, -1, config.Ingest.Retry.MaxRetries)
}
