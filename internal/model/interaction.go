package model

import "time"

// InteractionType tags an interaction log entry.
type InteractionType string

const (
	InteractionNote InteractionType = "Note"
	InteractionSync InteractionType = "Sync"
)

// Interaction is an immutable log record tied to a lead.
type Interaction struct {
	ID           string          `json:"id,omitempty"`
	LeadID       string          `json:"lead_id"`
	Type         InteractionType `json:"type"`
	Summary      string          `json:"summary"`
	RecordingURL string          `json:"recording_url,omitempty"`
	Meta         Meta            `json:"meta_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at,omitzero"`
}
