package intake

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/scorer"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/internal/worker"
)

// scriptedStore answers InsertLead from a list of outcomes and records
// every write.
type scriptedStore struct {
	store.Store

	mu           sync.Mutex
	outcomes     []outcome
	inserted     []model.Lead
	patches      map[string]store.LeadPatch
	interactions []model.Interaction
	patchCode    int
}

type outcome struct {
	code int
	echo bool
	err  error
}

func (s *scriptedStore) InsertLead(_ context.Context, lead model.Lead) (int, *model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := outcome{code: store.StatusCreated, echo: true}
	if n := len(s.inserted); n < len(s.outcomes) {
		o = s.outcomes[n]
	}
	s.inserted = append(s.inserted, lead)
	if o.err != nil {
		return 0, nil, o.err
	}
	if !o.echo {
		return o.code, nil, nil
	}
	if lead.ID == "" {
		lead.ID = "srv-" + lead.Name
	}
	return o.code, &lead, nil
}

func (s *scriptedStore) PatchLead(_ context.Context, id string, p store.LeadPatch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patches == nil {
		s.patches = map[string]store.LeadPatch{}
	}
	s.patches[id] = p
	if s.patchCode != 0 {
		return s.patchCode, nil
	}
	return store.StatusOK, nil
}

func (s *scriptedStore) InsertInteraction(_ context.Context, in model.Interaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, in)
	return store.StatusCreated, nil
}

type inlineScheduler struct{ calls int }

func (s *inlineScheduler) Go(_ string, fn worker.Task) {
	s.calls++
	_ = fn(context.Background())
}

func newScorer() *scorer.Scorer {
	return scorer.New(scorer.DefaultScoringConfig())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		status       string
		wantStatus   model.Status
		wantOriginal string
	}{
		{"valid status kept", "Follow-up", model.StatusFollowUp, "Follow-up"},
		{"unknown status defaults", "Bogus", model.StatusNew, "Bogus"},
		{"case sensitive", "meeting", model.StatusNew, "meeting"},
		{"missing status", "", model.StatusNew, "New"},
		{"persisted but unbucketed", "Engaged", model.StatusEngaged, "Engaged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(model.RawLead{Name: "Asha", Status: tt.status})
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantOriginal, got.Meta.String(model.MetaOriginalStatus))
		})
	}
}

func TestNormalize_RelocatesAdHocFields(t *testing.T) {
	raw := model.RawLead{
		Name:        "Asha",
		Meta:        model.Meta{"source": "expo", "location": "old"},
		Location:    "Mumbai",
		Intent:      map[string]any{"product": "PMS"},
		SocialMedia: "",
	}
	got := Normalize(raw)

	assert.Equal(t, "Mumbai", got.Meta["location"])
	assert.Equal(t, map[string]any{"product": "PMS"}, got.Meta["intent"])
	assert.NotContains(t, got.Meta, "social_media")
	assert.Equal(t, "expo", got.Meta["source"])
	assert.Equal(t, "old", raw.Meta["location"], "input meta must not change")
	assert.NotContains(t, raw.Meta, "original_status")
}

func TestReconcileBatch_DuplicateInMiddle(t *testing.T) {
	st := &scriptedStore{outcomes: []outcome{
		{code: store.StatusCreated, echo: true},
		{code: store.StatusConflict},
		{code: store.StatusCreated, echo: true},
	}}
	sched := &inlineScheduler{}
	r := NewReconciler(st, NewEnricher(st, newScorer()), sched)

	res := r.ReconcileBatch(context.Background(), []model.RawLead{
		{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"},
	})

	assert.Equal(t, []model.Ref{{ID: "a", Name: "A"}, {ID: "c", Name: "C"}}, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Duplicates)
	assert.Len(t, st.inserted, 3)
	assert.Equal(t, 1, sched.calls)
	assert.Len(t, st.interactions, 2)
}

func TestReconcileBatch_BogusStatus(t *testing.T) {
	st := &scriptedStore{}
	r := NewReconciler(st, nil, nil)

	res := r.ReconcileBatch(context.Background(), []model.RawLead{{Name: "Ravi", Status: "Bogus"}})
	require.Len(t, res.Accepted, 1)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, model.StatusNew, st.inserted[0].Status)
	assert.Equal(t, "Bogus", st.inserted[0].Meta.String("original_status"))
}

func TestReconcileBatch_FailuresNeverAbort(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	st := &scriptedStore{outcomes: []outcome{
		{err: errors.New("connection refused")},
		{code: store.StatusBadRequest},
		{code: store.StatusCreated, echo: false},
		{code: store.StatusCreated, echo: true},
	}}
	sched := &inlineScheduler{}
	r := NewReconciler(st, NewEnricher(st, newScorer()), sched)

	res := r.ReconcileBatch(context.Background(), []model.RawLead{
		{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"},
	})

	assert.Equal(t, []model.Ref{{ID: "srv-D", Name: "D"}}, res.Accepted)
	assert.Equal(t, 2, res.Rejected)
	assert.Zero(t, res.Duplicates)
	assert.Equal(t, 1, res.Unconfirmed)
	assert.Equal(t, 1, logs.FilterMessage("intake: lead insert failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("intake: lead rejected by store").Len())
	assert.Equal(t, 1, logs.FilterMessage("intake: lead stored without confirmation").Len())
}

func TestReconcileBatch_NothingAcceptedSkipsEnrichment(t *testing.T) {
	st := &scriptedStore{outcomes: []outcome{{code: store.StatusConflict}}}
	sched := &inlineScheduler{}
	r := NewReconciler(st, NewEnricher(st, newScorer()), sched)

	res := r.ReconcileBatch(context.Background(), []model.RawLead{{ID: "a", Name: "A"}})
	assert.Empty(t, res.Accepted)
	assert.NotNil(t, res.Accepted)
	assert.Zero(t, sched.calls)
}

func TestEnrich_PromotesQualified(t *testing.T) {
	st := &scriptedStore{}
	e := NewEnricher(st, newScorer())

	stats := e.Enrich(context.Background(), []model.Lead{
		{ID: "q", Name: "Q", Email: "q@x.in", Phone: "+91 98200 00000", Notes: "JITO member, wants portfolio review", Status: model.StatusNew},
		{ID: "n", Name: "N", Email: "n@x.in", Notes: "cold", Status: model.StatusNew},
	})

	assert.Equal(t, EnrichStats{Scored: 2, Promoted: 1}, stats)
	require.Contains(t, st.patches, "q")
	assert.Equal(t, model.StatusQualified, *st.patches["q"].Status)
	assert.NotContains(t, st.patches, "n")

	require.Len(t, st.interactions, 2)
	assert.Equal(t, model.InteractionSync, st.interactions[0].Type)
	assert.Equal(t, "Lead initially captured with score: 50", st.interactions[0].Summary)
	assert.Equal(t, "Lead initially captured with score: 10", st.interactions[1].Summary)
	assert.Equal(t, 50, st.interactions[0].Meta.Int("contact_score"))
}

func TestEnrich_PromotionRejectedIsCounted(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	st := &scriptedStore{patchCode: store.StatusNotFound}
	stats := NewEnricher(st, newScorer()).Enrich(context.Background(), []model.Lead{
		{ID: "q", Name: "Q", Email: "q@x.in", Phone: "1", Notes: "immediate"},
	})
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Promoted)
	assert.Len(t, st.interactions, 1)
	assert.Equal(t, 1, logs.FilterMessage("intake: status promotion rejected").Len())
}

func TestReconcileBatch_SQLiteWithPool(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	pool := worker.New(2, 8)
	r := NewReconciler(st, NewEnricher(st, newScorer()), pool)

	batch := []model.RawLead{
		{ID: "l-1", Name: "Asha", Email: "a@x.in", Phone: "98200", Notes: "HNI investor", Status: "Contacted"},
		{ID: "l-1", Name: "Asha again"},
		{ID: "l-2", Name: "Ravi", Status: "Bogus", Location: "Pune"},
	}
	res := r.ReconcileBatch(ctx, batch)
	require.NoError(t, pool.Close(ctx))

	assert.Equal(t, []model.Ref{{ID: "l-1", Name: "Asha"}, {ID: "l-2", Name: "Ravi"}}, res.Accepted)
	assert.Equal(t, 1, res.Duplicates)

	_, asha, err := store.GetLead(ctx, st, "l-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQualified, asha.Status)
	assert.Equal(t, "Contacted", asha.Meta.String("original_status"))

	_, ravi, err := store.GetLead(ctx, st, "l-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, ravi.Status)
	assert.Equal(t, "Pune", ravi.Meta.String("location"))

	syncs, err := st.ListInteractions(ctx, "l-2")
	require.NoError(t, err)
	require.Len(t, syncs, 1)
	assert.Equal(t, "Lead initially captured with score: 0", syncs[0].Summary)
}
