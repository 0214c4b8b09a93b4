// Package scorer computes lead priority and contact-completeness scores.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/config"
)

// DefaultScoringConfig returns a config.ScoringConfig with the stock thresholds.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		HotThreshold:       50,
		MeetingThreshold:   75,
		QualifiedThreshold: 40,
		NotesKeywords:      append([]string(nil), config.DefaultNotesKeywords...),
	}
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	thresholds := []struct {
		name string
		v    int
	}{
		{"hot_threshold", c.HotThreshold},
		{"meeting_threshold", c.MeetingThreshold},
		{"qualified_threshold", c.QualifiedThreshold},
	}
	for _, th := range thresholds {
		if th.v < 0 || th.v > MaxScore {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and %d", th.name, MaxScore))
		}
	}

	for i, kw := range c.NotesKeywords {
		if strings.TrimSpace(kw) == "" {
			errs = append(errs, fmt.Sprintf("notes_keywords[%d] is empty", i))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
