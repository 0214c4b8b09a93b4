package intake

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/scorer"
	"github.com/sells-group/lead-engine/internal/store"
)

// EnrichStats counts what one enrichment run did.
type EnrichStats struct {
	Scored   int
	Promoted int
	Failed   int
}

// Enricher scores freshly created leads by contact completeness, promotes
// qualified ones, and logs a Sync interaction for each.
type Enricher struct {
	store  store.Store
	scorer *scorer.Scorer
}

// NewEnricher creates an Enricher.
func NewEnricher(st store.Store, sc *scorer.Scorer) *Enricher {
	return &Enricher{store: st, scorer: sc}
}

// Enrich processes leads independently. Failures are logged, counted, and
// never returned.
func (e *Enricher) Enrich(ctx context.Context, leads []model.Lead) EnrichStats {
	var st EnrichStats
	for _, lead := range leads {
		log := zap.L().With(zap.String("lead_id", lead.ID), zap.String("name", lead.Name))
		score := e.scorer.ScoreContactCompleteness(lead.Email, lead.Phone, lead.Notes)
		st.Scored++
		failed := false

		if e.scorer.IsQualified(score) && lead.Status != model.StatusQualified {
			qualified := model.StatusQualified
			code, err := e.store.PatchLead(ctx, lead.ID, store.LeadPatch{Status: &qualified})
			switch {
			case err != nil:
				failed = true
				log.Error("intake: status promotion failed", zap.Error(err))
			case !store.IsSuccess(code):
				failed = true
				log.Error("intake: status promotion rejected", zap.Int("status_code", code))
			default:
				st.Promoted++
			}
		}

		code, err := e.store.InsertInteraction(ctx, model.Interaction{
			LeadID:  lead.ID,
			Type:    model.InteractionSync,
			Summary: fmt.Sprintf("Lead initially captured with score: %d", score),
			Meta:    model.Meta{"contact_score": score},
		})
		switch {
		case err != nil:
			failed = true
			log.Error("intake: sync interaction failed", zap.Error(err))
		case !store.IsSuccess(code):
			failed = true
			log.Error("intake: sync interaction rejected", zap.Int("status_code", code))
		}

		if failed {
			st.Failed++
			continue
		}
		log.Debug("intake: lead enriched", zap.Int("contact_score", score))
	}

	zap.L().Info("intake: enrichment finished",
		zap.Int("scored", st.Scored),
		zap.Int("promoted", st.Promoted),
		zap.Int("failed", st.Failed),
	)
	return st
}
