package model

import "time"

// Status is a persisted lead status. The value set is fixed and case-sensitive.
type Status string

const (
	StatusNew       Status = "New"
	StatusContacted Status = "Contacted"
	StatusQualified Status = "Qualified"
	StatusLost      Status = "Lost"
	StatusMeeting   Status = "Meeting"
	StatusWon       Status = "Won"
	StatusMet       Status = "Met"
	StatusFollowUp  Status = "Follow-up"
	StatusEngaged   Status = "Engaged"
	StatusOutcome   Status = "Outcome"
)

// Statuses is the full persisted status taxonomy.
var Statuses = []Status{
	StatusNew,
	StatusContacted,
	StatusQualified,
	StatusLost,
	StatusMeeting,
	StatusWon,
	StatusMet,
	StatusFollowUp,
	StatusEngaged,
	StatusOutcome,
}

// IsValidStatus reports whether s belongs to the persisted taxonomy.
func IsValidStatus(s string) bool {
	for _, st := range Statuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

// Lead is a persisted prospective-investor record.
type Lead struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Revenue      *float64  `json:"revenue,omitempty"`
	ConferenceID string    `json:"conference_id,omitempty"`
	OwnerID      string    `json:"owner_id,omitempty"`
	Status       Status    `json:"status"`
	ReminderDate time.Time `json:"reminder_date,omitzero"`
	CapturedAt   time.Time `json:"captured_at,omitzero"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	Meta         Meta      `json:"meta_data"`

	// MeetingLink is attached for display only and is never persisted.
	MeetingLink string `json:"meeting_link,omitempty"`
}

// Ref is the {id, name} pair reported for an accepted intake record.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ref returns the lead's identity pair.
func (l Lead) Ref() Ref {
	return Ref{ID: l.ID, Name: l.Name}
}

// PriorityScore returns meta_data.priority_score, 0 when absent.
func (l Lead) PriorityScore() int {
	return l.Meta.Int(MetaPriorityScore)
}

// RawLead is a lead as submitted for intake, before normalization. It may
// carry ad hoc top-level fields the store schema has no column for.
type RawLead struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Revenue      *float64  `json:"revenue,omitempty"`
	ConferenceID string    `json:"conference_id,omitempty"`
	OwnerID      string    `json:"owner_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	ReminderDate time.Time `json:"reminder_date,omitzero"`
	CapturedAt   time.Time `json:"captured_at,omitzero"`
	Meta         Meta      `json:"meta_data,omitempty"`

	Location    any `json:"location,omitempty"`
	Intent      any `json:"intent,omitempty"`
	SocialMedia any `json:"social_media,omitempty"`
}

// Conference is an event leads can be attributed to.
type Conference struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}
