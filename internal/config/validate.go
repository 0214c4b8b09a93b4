package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings needed by the given command mode are
// present. Every problem is collected into one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Audio.UploadDir == "" {
			errs = append(errs, "audio.upload_dir is required")
		}
		if c.Audio.MaxUploadMB <= 0 {
			errs = append(errs, "audio.max_upload_mb must be > 0")
		}
	case "sync", "pipeline":
		errs = append(errs, c.validateStore()...)
	case "export":
		errs = append(errs, c.validateStore()...)
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.Password == "" {
			errs = append(errs, "salesforce.password is required")
		}
	case "score":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateScoring()...)

	if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 64 {
		errs = append(errs, fmt.Sprintf("worker.concurrency must be between 1 and 64, got %d", c.Worker.Concurrency))
	}
	if c.Worker.QueueSize < 0 {
		errs = append(errs, "worker.queue_size must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgrest":
		if c.Store.PostgREST.URL == "" {
			errs = append(errs, "store.postgrest.url is required")
		}
		if c.Store.PostgREST.Key == "" {
			errs = append(errs, "store.postgrest.key is required")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be one of postgrest, postgres, sqlite, got %q", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateScoring() []string {
	var errs []string
	check := func(name string, v int) {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("scoring.%s must be between 0 and 100, got %d", name, v))
		}
	}
	check("hot_threshold", c.Scoring.HotThreshold)
	check("meeting_threshold", c.Scoring.MeetingThreshold)
	check("qualified_threshold", c.Scoring.QualifiedThreshold)
	return errs
}
