package scorer

import (
	"strings"

	"github.com/sells-group/lead-engine/internal/normalize"
)

const (
	emailPoints   = 10
	phonePoints   = 10
	notesKWPoints = 30
)

// ScoreContactCompleteness rates how reachable and engaged a freshly captured
// lead looks. It is unclamped and on its own scale, separate from the
// priority score.
func (s *Scorer) ScoreContactCompleteness(email, phone, notes string) int {
	score := 0
	if strings.TrimSpace(email) != "" {
		score += emailPoints
	}
	if normalize.NormalizeDigits(phone) != "" {
		score += phonePoints
	}
	if containsAny(notes, s.cfg.NotesKeywords) {
		score += notesKWPoints
	}
	return score
}

// IsQualified reports whether a contact-completeness score promotes the lead
// to Qualified.
func (s *Scorer) IsQualified(contactScore int) bool {
	return contactScore >= s.cfg.QualifiedThreshold
}
