package api

import (
	"bytes"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/pipeline"
)

// DisplayLayout is how timestamps are rendered to clients.
const DisplayLayout = "2006-01-02 15:04:05 IST"

// istOffset is used when the configured zone is not in the tz database.
var istOffset = time.FixedZone("IST", 5*60*60+30*60)

// Display converts stored UTC timestamps into the client-facing zone.
type Display struct {
	loc *time.Location
}

// NewDisplay loads tz, falling back to a fixed +05:30 offset.
func NewDisplay(tz string) *Display {
	if tz == "" {
		return &Display{loc: istOffset}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		zap.L().Warn("api: unknown display time zone, using +05:30",
			zap.String("time_zone", tz),
			zap.Error(err),
		)
		loc = istOffset
	}
	return &Display{loc: loc}
}

// Format renders t in the display zone. The zero time renders as "".
func (d *Display) Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(d.loc).Format(DisplayLayout)
}

// LeadView is a lead with display-formatted timestamps. The string fields
// shadow the embedded time fields when encoded.
type LeadView struct {
	model.Lead
	ReminderDate string `json:"reminder_date,omitempty"`
	CapturedAt   string `json:"captured_at,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// View converts a lead for display.
func (d *Display) View(l model.Lead) LeadView {
	return LeadView{
		Lead:         l,
		ReminderDate: d.Format(l.ReminderDate),
		CapturedAt:   d.Format(l.CapturedAt),
		CreatedAt:    d.Format(l.CreatedAt),
	}
}

// Views converts leads for display. The result is never nil.
func (d *Display) Views(leads []model.Lead) []LeadView {
	out := make([]LeadView, 0, len(leads))
	for _, l := range leads {
		out = append(out, d.View(l))
	}
	return out
}

// BoardView encodes a pipeline board with display timestamps, keeping the
// board's column order.
type BoardView struct {
	board   *pipeline.Board
	display *Display
}

// Board wraps b for display.
func (d *Display) Board(b *pipeline.Board) BoardView {
	return BoardView{board: b, display: d}
}

// MarshalJSON encodes the columns in display order.
func (v BoardView) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, bk := range v.board.Buckets() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(bk))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.display.Views(v.board.Leads(bk)))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
