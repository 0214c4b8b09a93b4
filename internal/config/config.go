package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Transcribe TranscribeConfig `yaml:"transcribe" mapstructure:"transcribe"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Meeting    MeetingConfig    `yaml:"meeting" mapstructure:"meeting"`
	Audio      AudioConfig      `yaml:"audio" mapstructure:"audio"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Display    DisplayConfig    `yaml:"display" mapstructure:"display"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lead store backend.
type StoreConfig struct {
	Driver      string          `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string          `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string          `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgREST   PostgRESTConfig `yaml:"postgrest" mapstructure:"postgrest"`
}

// PostgRESTConfig holds the REST endpoint (Supabase style) for the hosted store.
type PostgRESTConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TranscribeConfig holds the Whisper-compatible transcription endpoint.
type TranscribeConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// AnthropicConfig holds Anthropic API settings for intent extraction.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScoringConfig holds the scoring thresholds. Hot and qualified thresholds
// apply to different scores and are tuned independently.
type ScoringConfig struct {
	HotThreshold       int      `yaml:"hot_threshold" mapstructure:"hot_threshold"`
	MeetingThreshold   int      `yaml:"meeting_threshold" mapstructure:"meeting_threshold"`
	QualifiedThreshold int      `yaml:"qualified_threshold" mapstructure:"qualified_threshold"`
	NotesKeywords      []string `yaml:"notes_keywords" mapstructure:"notes_keywords"`
}

// MeetingConfig controls generated meeting-room links.
type MeetingConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	LeadPrefix string `yaml:"lead_prefix" mapstructure:"lead_prefix"`
	NamePrefix string `yaml:"name_prefix" mapstructure:"name_prefix"`
}

// AudioConfig configures recording uploads.
type AudioConfig struct {
	UploadDir   string `yaml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// WorkerConfig sizes the background task pool.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	QueueSize   int `yaml:"queue_size" mapstructure:"queue_size"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	DefaultUserID  string   `yaml:"default_user_id" mapstructure:"default_user_id"`
}

// DisplayConfig controls how timestamps are rendered to clients.
type DisplayConfig struct {
	TimeZone string `yaml:"time_zone" mapstructure:"time_zone"`
}

// NotionConfig holds Notion API credentials and the leads database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce username-password OAuth settings.
type SalesforceConfig struct {
	ClientID      string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string `yaml:"client_secret" mapstructure:"client_secret"`
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`
	SecurityToken string `yaml:"security_token" mapstructure:"security_token"`
	LoginURL      string `yaml:"login_url" mapstructure:"login_url"`
	LeadSource    string `yaml:"lead_source" mapstructure:"lead_source"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultNotesKeywords are the note tokens that mark a high-intent lead.
var DefaultNotesKeywords = []string{"hni", "investment", "portfolio", "jito", "immediate"}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal, including keys whose default is empty.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgrest")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "leads.db")
	v.SetDefault("store.postgrest.url", "")
	v.SetDefault("store.postgrest.key", "")
	v.SetDefault("store.postgrest.rate_limit", 10.0)
	v.SetDefault("store.postgrest.timeout_secs", 15)

	v.SetDefault("transcribe.url", "https://api.groq.com/openai/v1/audio/transcriptions")
	v.SetDefault("transcribe.key", "")
	v.SetDefault("transcribe.model", "whisper-large-v3")
	v.SetDefault("transcribe.timeout_secs", 120)
	v.SetDefault("transcribe.max_retries", 2)

	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("anthropic.timeout_secs", 30)

	v.SetDefault("scoring.hot_threshold", 50)
	v.SetDefault("scoring.meeting_threshold", 75)
	v.SetDefault("scoring.qualified_threshold", 40)
	v.SetDefault("scoring.notes_keywords", DefaultNotesKeywords)

	v.SetDefault("meeting.base_url", "https://meet.jit.si")
	v.SetDefault("meeting.lead_prefix", "finideas")
	v.SetDefault("meeting.name_prefix", "FinSync")

	v.SetDefault("audio.upload_dir", "uploads")
	v.SetDefault("audio.max_upload_mb", 50)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 256)

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.default_user_id", "00000000-0000-0000-0000-000000000000")

	v.SetDefault("display.time_zone", "Asia/Kolkata")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")

	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.client_secret", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.password", "")
	v.SetDefault("salesforce.security_token", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.lead_source", "Lead Engine")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
