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
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml or .env is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgrest", cfg.Store.Driver)
	assert.Equal(t, "leads.db", cfg.Store.SQLitePath)
	assert.InDelta(t, 10.0, cfg.Store.PostgREST.RateLimit, 0.001)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", cfg.Server.DefaultUserID)
	assert.Equal(t, 50, cfg.Scoring.HotThreshold)
	assert.Equal(t, 75, cfg.Scoring.MeetingThreshold)
	assert.Equal(t, 40, cfg.Scoring.QualifiedThreshold)
	assert.Equal(t, DefaultNotesKeywords, cfg.Scoring.NotesKeywords)
	assert.Equal(t, "https://meet.jit.si", cfg.Meeting.BaseURL)
	assert.Equal(t, "finideas", cfg.Meeting.LeadPrefix)
	assert.Equal(t, "FinSync", cfg.Meeting.NamePrefix)
	assert.Equal(t, "uploads", cfg.Audio.UploadDir)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, "Asia/Kolkata", cfg.Display.TimeZone)
	assert.Equal(t, "whisper-large-v3", cfg.Transcribe.Model)
	assert.Equal(t, int64(512), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/leads.db
log:
  level: debug
  format: console
server:
  port: 9090
scoring:
  hot_threshold: 60
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/leads.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Scoring.HotThreshold)
	// Defaults still apply for unset values
	assert.Equal(t, 40, cfg.Scoring.QualifiedThreshold)
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

	t.Setenv("LEADS_STORE_DRIVER", "postgres")
	t.Setenv("LEADS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADS_SERVER_PORT", "3000")
	t.Setenv("LEADS_STORE_POSTGREST_KEY", "service-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "service-key", cfg.Store.PostgREST.Key)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEADS_ANTHROPIC_KEY=sk-ant-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("LEADS_ANTHROPIC_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-dotenv", cfg.Anthropic.Key)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgrest"
	cfg.Store.PostgREST.URL = "https://project.supabase.co"
	cfg.Store.PostgREST.Key = "service-key"
	cfg.Scoring.HotThreshold = 50
	cfg.Scoring.MeetingThreshold = 75
	cfg.Scoring.QualifiedThreshold = 40
	cfg.Audio.UploadDir = "uploads"
	cfg.Audio.MaxUploadMB = 50
	cfg.Worker.Concurrency = 4
	cfg.Server.Port = 8000
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStoreDrivers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgrest missing url", func(c *Config) { c.Store.PostgREST.URL = "" }, "store.postgrest.url is required"},
		{"postgrest missing key", func(c *Config) { c.Store.PostgREST.Key = "" }, "store.postgrest.key is required"},
		{"postgres missing url", func(c *Config) { c.Store.Driver = "postgres" }, "store.database_url is required"},
		{"sqlite ok", func(c *Config) { c.Store.Driver = "sqlite"; c.Store.SQLitePath = "leads.db" }, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("sync")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateExport_MissingSalesforce(t *testing.T) {
	err := validDefaults().Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
	assert.Contains(t, err.Error(), "salesforce.username is required")
	assert.Contains(t, err.Error(), "salesforce.password is required")
}

func TestValidateScoringBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.HotThreshold = 101
	cfg.Scoring.QualifiedThreshold = -1

	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.hot_threshold must be between 0 and 100")
	assert.Contains(t, err.Error(), "scoring.qualified_threshold must be between 0 and 100")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Worker.Concurrency = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.concurrency must be between 1 and 64")

	cfg.Worker.Concurrency = 64
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
