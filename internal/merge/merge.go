// Package merge folds extracted intent into stored lead metadata without
// overwriting values that were already captured.
package merge

import (
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/scorer"
)

// Merger applies the non-destructive metadata merge policy.
type Merger struct {
	scorer *scorer.Scorer
	links  *LinkGenerator
}

// New creates a Merger.
func New(s *scorer.Scorer, links *LinkGenerator) *Merger {
	return &Merger{scorer: s, links: links}
}

// Links returns the generator used for meeting links.
func (m *Merger) Links() *LinkGenerator {
	return m.links
}

// IsHot reports whether score marks a lead as hot.
func (m *Merger) IsHot(score int) bool {
	return m.scorer.IsHot(score)
}

// WantsMeeting reports whether a lead in status with the given priority score
// should carry a meeting link.
func (m *Merger) WantsMeeting(score int, status model.Status) bool {
	return m.scorer.NeedsMeeting(score) || status == model.StatusMeeting
}

// MergeExtractedIntent returns a copy of existing with extracted signals and
// derived flags folded in. existing is never modified.
//
// Extracted keys and priority_score are written only where the existing
// value is absent or falsy. is_hot is written only when the key is absent,
// so an explicit false survives. A meeting link is added once when the
// score or status calls for one.
func (m *Merger) MergeExtractedIntent(existing model.Meta, extracted model.IntentSignals, score int, status model.Status, leadID string) model.Meta {
	out := existing.Clone()

	for k, v := range extracted {
		if !out.Truthy(k) {
			out[k] = v
		}
	}

	if !out.Truthy(model.MetaPriorityScore) {
		out[model.MetaPriorityScore] = score
	}

	if !out.Has(model.MetaIsHot) {
		out[model.MetaIsHot] = m.scorer.IsHot(score)
	}

	if m.WantsMeeting(score, status) && !out.Has(model.MetaMeetingLink) {
		out[model.MetaMeetingLink] = m.links.ForLead(leadID)
		zap.L().Debug("merge: meeting link generated",
			zap.String("lead_id", leadID),
			zap.Int("score", score),
			zap.String("status", string(status)),
		)
	}

	return out
}
