// Package store persists leads, interactions, and conferences. Every
// operation reports an HTTP-style status code so callers can tell a
// duplicate (409) from any other rejection; a non-nil error means the call
// never completed.
package store

import (
	"context"
	"net/http"
	"time"

	"github.com/sells-group/lead-engine/internal/model"
)

// Status codes returned by stores.
const (
	StatusOK         = http.StatusOK
	StatusCreated    = http.StatusCreated
	StatusBadRequest = http.StatusBadRequest
	StatusNotFound   = http.StatusNotFound
	StatusConflict   = http.StatusConflict
)

// IsSuccess reports whether code is a 2xx status.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// LeadQuery filters lead reads. Zero fields do not filter.
type LeadQuery struct {
	ID             string
	Statuses       []model.Status
	ConferenceID   string
	ReminderBefore time.Time
	NewestFirst    bool
	Limit          int
}

// LeadPatch lists the fields to update. Nil fields are left untouched.
type LeadPatch struct {
	Status       *model.Status `json:"status,omitempty"`
	OwnerID      *string       `json:"owner_id,omitempty"`
	ReminderDate *time.Time    `json:"reminder_date,omitempty"`
	Meta         model.Meta    `json:"meta_data,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p LeadPatch) IsEmpty() bool {
	return p.Status == nil && p.OwnerID == nil && p.ReminderDate == nil && p.Meta == nil
}

// Store is the persistence contract.
type Store interface {
	// InsertLead creates a lead. A store-assigned id is used when lead.ID is
	// empty. The returned record is nil when the store reports success
	// without echoing a body.
	InsertLead(ctx context.Context, lead model.Lead) (int, *model.Lead, error)
	PatchLead(ctx context.Context, id string, patch LeadPatch) (int, error)
	GetLeads(ctx context.Context, q LeadQuery) (int, []model.Lead, error)
	CountLeads(ctx context.Context, q LeadQuery) (int, int, error)

	InsertInteraction(ctx context.Context, in model.Interaction) (int, error)
	GetConference(ctx context.Context, id string) (int, *model.Conference, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// GetLead fetches a single lead by id. It returns nil with StatusNotFound
// when no such lead exists.
func GetLead(ctx context.Context, s Store, id string) (int, *model.Lead, error) {
	code, leads, err := s.GetLeads(ctx, LeadQuery{ID: id, Limit: 1})
	if err != nil || !IsSuccess(code) {
		return code, nil, err
	}
	if len(leads) == 0 {
		return StatusNotFound, nil, nil
	}
	return code, &leads[0], nil
}
