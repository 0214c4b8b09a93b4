// Package source loads lead batches from files and Notion for intake.
package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/model"
)

// dateLayouts are tried in order when a sheet cell carries a timestamp.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized date %q", s)
}

// columnKey folds a header cell to the snake_case field name it names.
func columnKey(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return h
}

// rowsToLeads maps a header row plus data rows onto RawLeads. Blank rows
// are skipped; columns with no RawLead field go to meta_data.
func rowsToLeads(header []string, rows [][]string) ([]model.RawLead, error) {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = columnKey(h)
	}

	var leads []model.RawLead
	for n, row := range rows {
		if blankRow(row) {
			continue
		}
		lead, err := rowToLead(keys, row)
		if err != nil {
			return nil, eris.Wrapf(err, "source: row %d", n+2)
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func rowToLead(keys, row []string) (model.RawLead, error) {
	var lead model.RawLead
	for i, key := range keys {
		if i >= len(row) || key == "" {
			continue
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			continue
		}
		switch key {
		case "id":
			lead.ID = v
		case "name":
			lead.Name = v
		case "email":
			lead.Email = v
		case "phone":
			lead.Phone = v
		case "notes":
			lead.Notes = v
		case "status":
			lead.Status = v
		case "conference_id":
			lead.ConferenceID = v
		case "owner_id":
			lead.OwnerID = v
		case "location":
			lead.Location = v
		case "intent":
			lead.Intent = v
		case "social_media":
			lead.SocialMedia = v
		case "revenue":
			f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
			if err != nil {
				return lead, eris.Wrapf(err, "revenue %q", v)
			}
			lead.Revenue = &f
		case "reminder_date":
			t, err := parseDate(v)
			if err != nil {
				return lead, err
			}
			lead.ReminderDate = t
		case "captured_at":
			t, err := parseDate(v)
			if err != nil {
				return lead, err
			}
			lead.CapturedAt = t
		default:
			if lead.Meta == nil {
				lead.Meta = model.Meta{}
			}
			lead.Meta[key] = v
		}
	}
	return lead, nil
}
