// Package intake reconciles submitted lead batches against the store and
// schedules their enrichment.
package intake

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/internal/worker"
)

// Scheduler runs fire-and-forget work. *worker.Pool satisfies it.
type Scheduler interface {
	Go(name string, fn worker.Task)
}

// Result summarizes one batch.
type Result struct {
	// Accepted lists the leads the store created and echoed back.
	Accepted []model.Ref `json:"accepted"`
	// Rejected counts every lead that was not created, duplicates included.
	Rejected int `json:"rejected"`
	// Duplicates is the share of Rejected caused by unique-key conflicts.
	Duplicates int `json:"duplicates"`
	// Unconfirmed counts leads the store acknowledged without a body.
	Unconfirmed int `json:"unconfirmed"`
}

// Reconciler submits leads one at a time, first come first served.
type Reconciler struct {
	store    store.Store
	enricher *Enricher
	sched    Scheduler
}

// NewReconciler creates a Reconciler. A nil enricher or scheduler disables
// enrichment.
func NewReconciler(st store.Store, en *Enricher, sched Scheduler) *Reconciler {
	return &Reconciler{store: st, enricher: en, sched: sched}
}

// ReconcileBatch normalizes and inserts each lead in order. A failed item
// never stops the batch and is never returned as an error. Accepted leads
// are handed to the enricher in the background.
func (r *Reconciler) ReconcileBatch(ctx context.Context, leads []model.RawLead) Result {
	res := Result{Accepted: []model.Ref{}}
	var created []model.Lead

	for i, raw := range leads {
		lead := Normalize(raw)
		log := zap.L().With(
			zap.Int("index", i),
			zap.String("lead_id", lead.ID),
			zap.String("name", lead.Name),
		)

		code, saved, err := r.store.InsertLead(ctx, lead)
		switch {
		case err != nil:
			res.Rejected++
			log.Warn("intake: lead insert failed", zap.Error(err))
		case code == store.StatusConflict:
			res.Rejected++
			res.Duplicates++
			log.Info("intake: duplicate lead ignored")
		case !store.IsSuccess(code):
			res.Rejected++
			log.Warn("intake: lead rejected by store", zap.Int("status_code", code))
		case saved == nil:
			res.Unconfirmed++
			log.Warn("intake: lead stored without confirmation", zap.Int("status_code", code))
		default:
			res.Accepted = append(res.Accepted, saved.Ref())
			created = append(created, *saved)
		}
	}

	zap.L().Info("intake: batch reconciled",
		zap.Int("submitted", len(leads)),
		zap.Int("accepted", len(res.Accepted)),
		zap.Int("rejected", res.Rejected),
		zap.Int("duplicates", res.Duplicates),
	)

	if len(created) > 0 && r.enricher != nil && r.sched != nil {
		r.sched.Go("intake-enrich", func(ctx context.Context) error {
			r.enricher.Enrich(ctx, created)
			return nil
		})
	}
	return res
}
