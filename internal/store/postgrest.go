package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
)

const (
	leadsTable        = "leads"
	interactionsTable = "interactions"
	conferencesTable  = "conferences"
)

// PostgRESTStore implements Store against a PostgREST (Supabase) endpoint.
// Reads are retried on transient failures; writes are sent once so a lost
// response can never double-insert.
type PostgRESTStore struct {
	baseURL string
	key     string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// PostgRESTOption configures a PostgRESTStore.
type PostgRESTOption func(*PostgRESTStore)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) PostgRESTOption {
	return func(s *PostgRESTStore) { s.http = c }
}

// WithRateLimit caps outgoing requests per second. rps <= 0 removes the cap.
func WithRateLimit(rps float64) PostgRESTOption {
	return func(s *PostgRESTStore) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithRetry overrides the read retry policy.
func WithRetry(cfg resilience.RetryConfig) PostgRESTOption {
	return func(s *PostgRESTStore) { s.retry = cfg }
}

// NewPostgREST creates a store for the project at baseURL. "/rest/v1" is
// appended unless already present.
func NewPostgREST(baseURL, key string, opts ...PostgRESTOption) *PostgRESTStore {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/rest/v1") {
		base += "/rest/v1"
	}
	s := &PostgRESTStore{
		baseURL: base,
		key:     key,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:       "postgrest",
			ShouldTrip: resilience.IsTransient,
		}),
		retry: resilience.DefaultRetryConfig("postgrest"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type restResponse struct {
	code   int
	body   []byte
	header http.Header
}

// send performs one logical request. A transient HTTP status that survives
// retries is returned as a response, not an error.
func (s *PostgRESTStore) send(ctx context.Context, method, table string, q url.Values, payload any, prefer string) (restResponse, error) {
	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return restResponse{}, eris.Wrapf(err, "postgrest: marshal %s payload", table)
		}
		raw = b
	}

	u := s.baseURL + "/" + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var last restResponse
	attempt := func(ctx context.Context) (restResponse, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return restResponse{}, eris.Wrap(err, "postgrest: rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(raw))
		if err != nil {
			return restResponse{}, eris.Wrapf(err, "postgrest: build %s %s", method, table)
		}
		req.Header.Set("apikey", s.key)
		req.Header.Set("Authorization", "Bearer "+s.key)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			return restResponse{}, eris.Wrapf(err, "postgrest: %s %s", method, table)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return restResponse{}, eris.Wrapf(err, "postgrest: read %s %s", method, table)
		}

		last = restResponse{code: resp.StatusCode, body: body, header: resp.Header}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return last, resilience.CheckStatus(resp.StatusCode, body)
		}
		return last, nil
	}

	call := attempt
	if method == http.MethodGet {
		call = func(ctx context.Context) (restResponse, error) {
			return resilience.DoVal(ctx, s.retry, attempt)
		}
	}

	r, err := resilience.ExecuteVal(ctx, s.breaker, call)
	if err != nil {
		var te *resilience.TransientError
		if errors.As(err, &te) && te.StatusCode > 0 {
			return last, nil
		}
		return restResponse{}, err
	}
	return r, nil
}

// InsertLead implements Store.
func (s *PostgRESTStore) InsertLead(ctx context.Context, lead model.Lead) (int, *model.Lead, error) {
	lead.MeetingLink = ""
	if lead.Meta == nil {
		lead.Meta = model.Meta{}
	}
	r, err := s.send(ctx, http.MethodPost, leadsTable, nil, lead, "return=representation")
	if err != nil {
		return 0, nil, err
	}
	if !IsSuccess(r.code) {
		s.logReject("insert lead", r)
		return r.code, nil, nil
	}

	var rows []model.Lead
	if len(bytes.TrimSpace(r.body)) > 0 {
		if err := json.Unmarshal(r.body, &rows); err != nil {
			return r.code, nil, eris.Wrap(err, "postgrest: decode inserted lead")
		}
	}
	if len(rows) == 0 {
		return r.code, nil, nil
	}
	return r.code, &rows[0], nil
}

// PatchLead implements Store.
func (s *PostgRESTStore) PatchLead(ctx context.Context, id string, patch LeadPatch) (int, error) {
	if patch.IsEmpty() {
		return StatusBadRequest, nil
	}
	q := url.Values{"id": {"eq." + id}, "select": {"id"}}
	r, err := s.send(ctx, http.MethodPatch, leadsTable, q, patch, "return=representation")
	if err != nil {
		return 0, err
	}
	if !IsSuccess(r.code) {
		s.logReject("patch lead", r)
		return r.code, nil
	}
	if strings.TrimSpace(string(r.body)) == "[]" {
		return StatusNotFound, nil
	}
	return r.code, nil
}

// GetLeads implements Store.
func (s *PostgRESTStore) GetLeads(ctx context.Context, lq LeadQuery) (int, []model.Lead, error) {
	q := leadFilter(lq)
	q.Set("select", "*")
	r, err := s.send(ctx, http.MethodGet, leadsTable, q, nil, "")
	if err != nil {
		return 0, nil, err
	}
	if !IsSuccess(r.code) {
		s.logReject("get leads", r)
		return r.code, nil, nil
	}
	var leads []model.Lead
	if err := json.Unmarshal(r.body, &leads); err != nil {
		return r.code, nil, eris.Wrap(err, "postgrest: decode leads")
	}
	return r.code, leads, nil
}

// CountLeads implements Store using an exact count from Content-Range.
func (s *PostgRESTStore) CountLeads(ctx context.Context, lq LeadQuery) (int, int, error) {
	q := leadFilter(lq)
	q.Del("order")
	q.Set("select", "id")
	q.Set("limit", "1")
	r, err := s.send(ctx, http.MethodGet, leadsTable, q, nil, "count=exact")
	if err != nil {
		return 0, 0, err
	}
	if !IsSuccess(r.code) {
		s.logReject("count leads", r)
		return r.code, 0, nil
	}
	n, err := parseContentRangeTotal(r.header.Get("Content-Range"))
	if err != nil {
		return r.code, 0, err
	}
	return r.code, n, nil
}

// InsertInteraction implements Store.
func (s *PostgRESTStore) InsertInteraction(ctx context.Context, in model.Interaction) (int, error) {
	r, err := s.send(ctx, http.MethodPost, interactionsTable, nil, in, "return=minimal")
	if err != nil {
		return 0, err
	}
	if !IsSuccess(r.code) {
		s.logReject("insert interaction", r)
	}
	return r.code, nil
}

// GetConference implements Store.
func (s *PostgRESTStore) GetConference(ctx context.Context, id string) (int, *model.Conference, error) {
	q := url.Values{"id": {"eq." + id}, "select": {"id,name,cost"}}
	r, err := s.send(ctx, http.MethodGet, conferencesTable, q, nil, "")
	if err != nil {
		return 0, nil, err
	}
	if !IsSuccess(r.code) {
		s.logReject("get conference", r)
		return r.code, nil, nil
	}
	var rows []model.Conference
	if err := json.Unmarshal(r.body, &rows); err != nil {
		return r.code, nil, eris.Wrap(err, "postgrest: decode conference")
	}
	if len(rows) == 0 {
		return StatusNotFound, nil, nil
	}
	return r.code, &rows[0], nil
}

// Ping implements Store.
func (s *PostgRESTStore) Ping(ctx context.Context) error {
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	r, err := s.send(ctx, http.MethodGet, leadsTable, q, nil, "")
	if err != nil {
		return err
	}
	if err := resilience.CheckStatus(r.code, r.body); err != nil {
		return eris.Wrap(err, "postgrest: ping")
	}
	return nil
}

// Migrate is a no-op: the hosted schema is managed outside this process.
func (s *PostgRESTStore) Migrate(ctx context.Context) error {
	zap.L().Debug("postgrest: schema is managed remotely, skipping migrate")
	return nil
}

// Close releases idle connections.
func (s *PostgRESTStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *PostgRESTStore) logReject(op string, r restResponse) {
	zap.L().Debug("postgrest: non-success response",
		zap.String("op", op),
		zap.Int("status_code", r.code),
		zap.ByteString("body", truncateBody(r.body)),
	)
}

func truncateBody(b []byte) []byte {
	const maxLen = 300
	if len(b) > maxLen {
		return b[:maxLen]
	}
	return b
}

func leadFilter(lq LeadQuery) url.Values {
	q := url.Values{}
	if lq.ID != "" {
		q.Set("id", "eq."+lq.ID)
	}
	switch len(lq.Statuses) {
	case 0:
	case 1:
		q.Set("status", "eq."+string(lq.Statuses[0]))
	default:
		quoted := make([]string, len(lq.Statuses))
		for i, st := range lq.Statuses {
			quoted[i] = strconv.Quote(string(st))
		}
		q.Set("status", "in.("+strings.Join(quoted, ",")+")")
	}
	if lq.ConferenceID != "" {
		q.Set("conference_id", "eq."+lq.ConferenceID)
	}
	if !lq.ReminderBefore.IsZero() {
		q.Set("reminder_date", "lt."+lq.ReminderBefore.UTC().Format(time.RFC3339))
	}
	if lq.NewestFirst {
		q.Set("order", "created_at.desc")
	}
	if lq.Limit > 0 {
		q.Set("limit", strconv.Itoa(lq.Limit))
	}
	return q
}

// parseContentRangeTotal reads the total from "0-9/42" or "*/0".
func parseContentRangeTotal(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || i == len(h)-1 {
		return 0, eris.Errorf("postgrest: malformed Content-Range %q", h)
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return 0, eris.Wrapf(err, "postgrest: parse Content-Range %q", h)
	}
	return n, nil
}
