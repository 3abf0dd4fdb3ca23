package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "veille.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 360, cfg.Server.ScheduleIntervalMins)
	assert.Equal(t, 30, cfg.Veille.RecentDays)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "local", cfg.PDF.Provider)
	assert.Equal(t, "pdftotext", cfg.PDF.PdfToTextPath)

	assert.True(t, cfg.Sources.HTML.Enabled)
	assert.Equal(t, "JU", cfg.Sources.HTML.Canton)
	assert.Equal(t, "APPEL_DOFFRES", cfg.Sources.HTML.Type)
	assert.Equal(t, "Non spécifiée", cfg.Sources.HTML.CommuneFallback)

	assert.Equal(t, "FR", cfg.Sources.Gazette.Canton)
	assert.Equal(t, 2, cfg.Sources.Gazette.MaxDocuments)

	assert.Equal(t, 20, cfg.Sources.SIMAP.PageSize)
	assert.Equal(t, 5, cfg.Sources.SIMAP.MaxPages)
	assert.Equal(t, []string{"VD", "GE", "VS", "FR", "NE", "JU"}, cfg.Sources.SIMAP.Cantons)

	assert.Equal(t, "VS", cfg.Sources.Bulletin.Canton)
	assert.Equal(t, 3, cfg.Sources.Bulletin.MaxPages)
	assert.Equal(t, 15, cfg.Sources.Bulletin.WaitTimeoutSecs)
	assert.Equal(t, 2000, cfg.Sources.Bulletin.PageDelayMs)
	assert.True(t, cfg.Sources.Bulletin.Headless)
	assert.Contains(t, cfg.Sources.Bulletin.ExcludeCategory, "adjudication")

	assert.Equal(t, "", cfg.RabbitMQ.URL)
	assert.Equal(t, "veille", cfg.RabbitMQ.Exchange)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/veille
log:
  level: debug
  format: console
veille:
  recent_days: 14
sources:
  simap:
    cantons: [VD, BE]
  bulletin:
    enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/veille", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 14, cfg.Veille.RecentDays)
	assert.Equal(t, []string{"VD", "BE"}, cfg.Sources.SIMAP.Cantons)
	assert.False(t, cfg.Sources.Bulletin.Enabled)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Sources.SIMAP.PageSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("VEILLE_STORE_DRIVER", "postgres")
	t.Setenv("VEILLE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("VEILLE_SERVER_PORT", "3000")
	t.Setenv("VEILLE_VEILLE_RECENT_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Veille.RecentDays)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VEILLE_SERVER_PORT=4000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("VEILLE_SERVER_PORT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults validation relies on.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "veille.db"
	cfg.Veille.RecentDays = 30
	cfg.Sources.SIMAP.Enabled = true
	cfg.Sources.SIMAP.PageSize = 20
	cfg.Sources.Bulletin.Enabled = true
	cfg.Sources.Bulletin.ListingURL = "https://bulletin.example.ch/list?page=%d"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllScopes(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("store", "sources", "server"))
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")

	cfg = validDefaults()
	cfg.Store.DatabaseURL = ""
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_Sources(t *testing.T) {
	cfg := validDefaults()
	cfg.Veille.RecentDays = 0
	err := cfg.Validate("sources")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recent_days")

	cfg = validDefaults()
	cfg.Sources.Bulletin.ListingURL = "https://bulletin.example.ch/list"
	err = cfg.Validate("sources")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholder")

	// Disabled sources are not validated.
	cfg.Sources.Bulletin.Enabled = false
	assert.NoError(t, cfg.Validate("sources"))
}

func TestValidate_Server(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	err := cfg.Validate("server")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server.port")
}

func TestValidate_UnknownScope(t *testing.T) {
	err := validDefaults().Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown validation scope")
}
