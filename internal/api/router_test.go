package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/audio"
	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/intake"
	"github.com/sells-group/lead-engine/internal/merge"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/pipeline"
	"github.com/sells-group/lead-engine/internal/scorer"
	"github.com/sells-group/lead-engine/internal/stats"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/internal/worker"
)

type staticTranscriber string

func (s staticTranscriber) Transcribe(context.Context, string, []byte) (string, error) {
	return string(s), nil
}

// cancellingTranscriber cancels the request mid-transcription and fails
// if the cancellation reaches it.
type cancellingTranscriber struct {
	cancel context.CancelFunc
}

func (c cancellingTranscriber) Transcribe(ctx context.Context, _ string, _ []byte) (string, error) {
	c.cancel()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "Looking at PMS with one crore", nil
}

type staticExtractor model.IntentSignals

func (s staticExtractor) Extract(context.Context, string) model.IntentSignals {
	return model.IntentSignals(s)
}

type downStore struct {
	store.Store
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

var fixedNow = time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)

type testAPI struct {
	store   *store.SQLiteStore
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	pool := worker.New(2, 8)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	sc := scorer.New(scorer.DefaultScoringConfig())
	mg := merge.New(sc, merge.NewLinkGenerator(config.MeetingConfig{}))
	signals := staticExtractor{
		"urgency":         "High",
		"ticket_size":     "1 Crore",
		"investor_type":   "HNI",
		"investment_type": "PMS",
	}

	h := NewRouter(Deps{
		Store:      st,
		Reconciler: intake.NewReconciler(st, nil, nil),
		Audio:      audio.NewProcessor(st, staticTranscriber("Looking at PMS with one crore"), signals, sc, mg, audio.NewRecordings(t.TempDir())),
		Stats:      stats.New(st),
		Classifier: pipeline.NewClassifier(mg),
		Pool:       pool,
		Display:    NewDisplay("Asia/Kolkata"),
		Server:     config.ServerConfig{DefaultUserID: "u-default"},
		Upload:     config.AudioConfig{MaxUploadMB: 5},
		Now:        func() time.Time { return fixedNow },
	})
	return &testAPI{store: st, handler: h}
}

func (a *testAPI) seed(t *testing.T, leads ...model.Lead) {
	t.Helper()
	for _, l := range leads {
		code, _, err := a.store.InsertLead(context.Background(), l)
		require.NoError(t, err)
		require.Equal(t, store.StatusCreated, code)
	}
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func audioRequest(t *testing.T, leadID, userID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if leadID != "" {
		require.NoError(t, mw.WriteField("lead_id", leadID))
	}
	fw, err := mw.CreateFormFile("file", "call.wav")
	require.NoError(t, err)
	_, err = fw.Write([]byte("RIFF....WAVE"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process-audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	return req
}

func TestRoot(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	body := decode[map[string]string](t, rr)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "Lead Management API is running", body["message"])
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"status": "ok", "db": "connected"}, decode[map[string]string](t, rr))
}

func TestHealth_StoreDown(t *testing.T) {
	h := NewRouter(Deps{Store: downStore{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]string](t, rr)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "disconnected", body["db"])
	assert.Contains(t, body["details"], "connection refused")
}

func TestSync(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, model.Lead{ID: "dup", Name: "Existing", Status: model.StatusNew})

	payload := `[
		{"id":"n-1","name":"Asha","email":"asha@example.com"},
		{"id":"dup","name":"Again"},
		{"id":"n-2","name":"Ravi","status":"Qualified"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := a.do(req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[syncResponse](t, rr)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 2, body.NewRecords)
	assert.Equal(t, 1, body.IgnoredDuplicates)
	assert.Equal(t, []model.Ref{{ID: "n-1", Name: "Asha"}, {ID: "n-2", Name: "Ravi"}}, body.Accepted)
}

func TestSync_BadBody(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(`{"name":"not an array"}`)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "JSON array")
}

func TestProcessAudio(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, model.Lead{ID: "l-1", Name: "Asha", OwnerID: "u-1", Status: model.StatusNew})

	rr := a.do(audioRequest(t, "l-1", "u-1"))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "uploaded", body["status"])
	assert.Equal(t, "l-1", body["lead_id"])
	assert.Equal(t, "Looking at PMS with one crore", body["transcript"])
	assert.EqualValues(t, 100, body["priority_score"])
	assert.Equal(t, "https://meet.jit.si/finideas-l-1", body["meeting_link"])
	assert.True(t, strings.HasSuffix(body["file_path"].(string), "l-1_call.wav"))

	_, lead, err := store.GetLead(context.Background(), a.store, "l-1")
	require.NoError(t, err)
	assert.Equal(t, 100, lead.PriorityScore())
}

func TestProcessAudio_NotOwner(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, model.Lead{ID: "l-1", Name: "Asha", OwnerID: "u-1", Status: model.StatusNew})

	rr := a.do(audioRequest(t, "l-1", "someone-else"))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Not authorized")
}

func TestProcessAudio_DefaultUser(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, model.Lead{ID: "l-1", Name: "Asha", OwnerID: "u-default", Status: model.StatusNew})

	rr := a.do(audioRequest(t, "l-1", ""))

	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestProcessAudio_MissingLeadID(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(audioRequest(t, "", "u-1"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "lead_id is required")
}

func TestProcessAudio_InvalidLeadID(t *testing.T) {
	a := newTestAPI(t)
	for _, id := range []string{"../escaped", "a/b", `a\b`, ".."} {
		rr := a.do(audioRequest(t, id, "u-1"))
		assert.Equal(t, http.StatusBadRequest, rr.Code, id)
		assert.Contains(t, rr.Body.String(), "lead_id is invalid")
	}
}

func TestProcessAudio_ClientDisconnectDoesNotAbort(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	code, _, err := st.InsertLead(context.Background(), model.Lead{ID: "l-1", Name: "Asha", OwnerID: "u-1", Status: model.StatusNew})
	require.NoError(t, err)
	require.Equal(t, store.StatusCreated, code)

	pool := worker.New(1, 1)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := scorer.New(scorer.DefaultScoringConfig())
	mg := merge.New(sc, merge.NewLinkGenerator(config.MeetingConfig{}))
	signals := staticExtractor{"urgency": "High", "ticket_size": "1 Crore", "investor_type": "HNI", "investment_type": "PMS"}
	h := NewRouter(Deps{
		Store:  st,
		Audio:  audio.NewProcessor(st, cancellingTranscriber{cancel: cancel}, signals, sc, mg, audio.NewRecordings(t.TempDir())),
		Pool:   pool,
		Server: config.ServerConfig{DefaultUserID: "u-default"},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, audioRequest(t, "l-1", "u-1").WithContext(ctx))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Error(t, ctx.Err())

	_, lead, err := store.GetLead(context.Background(), st, "l-1")
	require.NoError(t, err)
	assert.Equal(t, 100, lead.PriorityScore())

	logs, err := st.ListInteractions(context.Background(), "l-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Summary, "Looking at PMS")
}

func TestProcessAudio_NotMultipart(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(httptest.NewRequest(http.MethodPost, "/process-audio", strings.NewReader("lead_id=1")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStats(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t,
		model.Lead{ID: "1", Name: "A", Status: model.StatusQualified},
		model.Lead{ID: "2", Name: "B", Status: model.StatusMeeting},
		model.Lead{ID: "3", Name: "C", Status: model.StatusFollowUp, ReminderDate: fixedNow.Add(-time.Hour)},
		model.Lead{ID: "4", Name: "D", Status: model.StatusNew},
	)

	rr := a.do(httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	d := decode[stats.Dashboard](t, rr)
	assert.Equal(t, stats.Dashboard{
		TotalLeads:        4,
		HotLeads:          1,
		MeetingsScheduled: 1,
		OverdueFollowups:  1,
		ConversionRate:    "25.0%",
	}, d)
}

func TestOverdueLeads_DisplayTime(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t,
		model.Lead{ID: "late", Name: "Late", Status: model.StatusFollowUp, ReminderDate: time.Date(2025, 3, 9, 18, 45, 0, 0, time.UTC)},
		model.Lead{ID: "later", Name: "Later", Status: model.StatusFollowUp, ReminderDate: fixedNow.Add(24 * time.Hour)},
	)

	rr := a.do(httptest.NewRequest(http.MethodGet, "/overdue-leads", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	leads := decode[[]map[string]any](t, rr)
	require.Len(t, leads, 1)
	assert.Equal(t, "late", leads[0]["id"])
	assert.Equal(t, "2025-03-10 00:15:00 IST", leads[0]["reminder_date"])
}

func TestConferenceROI(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, a.store.AddConference(ctx, model.Conference{ID: "c-1", Name: "JITO Connect", Cost: 1000}))
	rev := 2000.0
	a.seed(t, model.Lead{ID: "w", Name: "Won", Status: model.StatusWon, ConferenceID: "c-1", Revenue: &rev})

	rr := a.do(httptest.NewRequest(http.MethodGet, "/conference-roi/c-1", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	roi := decode[stats.ROI](t, rr)
	assert.Equal(t, 2000.0, roi.TotalRevenue)
	assert.Equal(t, 1000.0, roi.Cost)
	assert.Equal(t, "100.0%", roi.ROIPercentage)
}

func TestConferenceROI_NotFound(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(httptest.NewRequest(http.MethodGet, "/conference-roi/missing", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPipeline(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t,
		model.Lead{ID: "1", Name: "Asha", Status: model.StatusNew},
		model.Lead{ID: "2", Name: "Ravi Kumar", Status: model.StatusMeeting},
		model.Lead{ID: "3", Name: "Meera", Status: model.StatusMet},
	)

	rr := a.do(httptest.NewRequest(http.MethodGet, "/pipeline", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Met", rr.Header().Get(OverflowHeader))
	assert.True(t, strings.HasPrefix(rr.Body.String(), `{"New":`), rr.Body.String())

	board := decode[map[string][]map[string]any](t, rr)
	require.Len(t, board["Meeting"], 1)
	assert.Contains(t, board["Meeting"][0]["meeting_link"], "https://meet.jit.si/FinSync_")
	require.Len(t, board["Other"], 1)
	assert.Equal(t, "Meera", board["Other"][0]["name"])
	assert.Empty(t, board["Won"])
}

func TestPipeline_NoOverflowHeader(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, model.Lead{ID: "1", Name: "Asha", Status: model.StatusNew})

	rr := a.do(httptest.NewRequest(http.MethodGet, "/pipeline", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get(OverflowHeader))
	assert.NotContains(t, rr.Body.String(), `"Other"`)
}

func TestLeads_NewestFirst(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t,
		model.Lead{ID: "old", Name: "Old", Status: model.StatusNew},
		model.Lead{ID: "new", Name: "New", Status: model.StatusNew},
	)

	rr := a.do(httptest.NewRequest(http.MethodGet, "/leads", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	leads := decode[[]map[string]any](t, rr)
	require.Len(t, leads, 2)
	assert.Equal(t, "new", leads[0]["id"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} IST$`, leads[0]["created_at"])
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/sync", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rr := a.do(req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestDisplay_Format(t *testing.T) {
	utc := time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2025-01-01 01:30:00 IST", NewDisplay("Asia/Kolkata").Format(utc))
	assert.Equal(t, "2025-01-01 01:30:00 IST", NewDisplay("Nowhere/Atlantis").Format(utc))
	assert.Equal(t, "2025-01-01 01:30:00 IST", NewDisplay("").Format(utc))
	assert.Equal(t, "", NewDisplay("").Format(time.Time{}))
}

func TestDisplay_ViewShadowsTimes(t *testing.T) {
	d := NewDisplay("")
	v := d.View(model.Lead{ID: "1", Name: "A", Status: model.StatusNew, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"created_at":"2025-01-01 05:30:00 IST"`)
	assert.NotContains(t, string(raw), "reminder_date")
}
