package scorer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/normalize"
)

// MaxScore is the upper bound of the priority score.
const MaxScore = 100

// Point values for each priority rule.
const (
	urgencyPoints        = 30
	ticketHighPoints     = 40
	ticketMidPoints      = 25
	investorTypePoints   = 20
	investmentTypePoints = 15
)

var (
	urgentLabels         = []string{"High", "Urgent", "Immediate"}
	premiumInvestorTypes = []string{"HNI", "Institutional", "Wealthy"}
	productTypes         = []string{"PMS", "AIF", "Equity"}
)

// Breakdown itemizes the points awarded by ScorePriority.
type Breakdown struct {
	Urgency        int                      `json:"urgency"`
	TicketSize     int                      `json:"ticket_size"`
	TicketClass    normalize.MagnitudeClass `json:"-"`
	InvestorType   int                      `json:"investor_type"`
	InvestmentType int                      `json:"investment_type"`
	Raw            int                      `json:"raw"`
	Total          int                      `json:"total"`
}

// Scorer applies the configured thresholds to computed scores. It holds no
// mutable state and is safe for concurrent use.
type Scorer struct {
	cfg config.ScoringConfig
}

// New creates a Scorer from cfg.
func New(cfg config.ScoringConfig) *Scorer {
	if len(cfg.NotesKeywords) == 0 {
		cfg.NotesKeywords = config.DefaultNotesKeywords
	}
	return &Scorer{cfg: cfg}
}

// Config returns the thresholds in use.
func (s *Scorer) Config() config.ScoringConfig {
	return s.cfg
}

// ScorePriority returns a 0..100 score for an intent signal bag. It looks
// only at signals, never at previously stored scores.
func (s *Scorer) ScorePriority(signals model.IntentSignals) int {
	return s.Explain(signals).Total
}

// Explain scores signals and reports which rules fired.
func (s *Scorer) Explain(signals model.IntentSignals) Breakdown {
	var b Breakdown

	if oneOf(signals[model.MetaUrgency], urgentLabels) {
		b.Urgency = urgencyPoints
	}

	b.TicketClass = normalize.ParseTicketMagnitude(signals[model.MetaTicketSize]).Class
	switch b.TicketClass {
	case normalize.MagnitudeHigh:
		b.TicketSize = ticketHighPoints
	case normalize.MagnitudeMid:
		b.TicketSize = ticketMidPoints
	}

	if oneOf(signals[model.MetaInvestorType], premiumInvestorTypes) {
		b.InvestorType = investorTypePoints
	}
	if oneOf(signals[model.MetaInvestmentType], productTypes) {
		b.InvestmentType = investmentTypePoints
	}

	b.Raw = b.Urgency + b.TicketSize + b.InvestorType + b.InvestmentType
	b.Total = min(b.Raw, MaxScore)

	zap.L().Debug("scorer: priority computed",
		zap.Int("raw", b.Raw),
		zap.Int("total", b.Total),
		zap.Stringer("ticket_class", b.TicketClass),
	)
	return b
}

// IsHot reports whether a priority score marks the lead as hot.
func (s *Scorer) IsHot(score int) bool {
	return score >= s.cfg.HotThreshold
}

// NeedsMeeting reports whether a priority score warrants a meeting link.
func (s *Scorer) NeedsMeeting(score int) bool {
	return score > s.cfg.MeetingThreshold
}

// oneOf is an exact, case-sensitive label match.
func oneOf(v string, labels []string) bool {
	for _, l := range labels {
		if v == l {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
