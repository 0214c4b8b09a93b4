package intake

import (
	"github.com/sells-group/lead-engine/internal/model"
)

// relocated lists top-level intake fields that are kept in meta_data.
var relocated = []string{model.MetaLocation, model.MetaIntent, model.MetaSocialMedia}

// Normalize turns a submitted lead into one the store accepts. An unknown
// status is stored as New; the submitted value is always kept in
// meta_data.original_status. Location, intent and social_media move into
// meta_data. raw is not modified.
func Normalize(raw model.RawLead) model.Lead {
	original := raw.Status
	if original == "" {
		original = string(model.StatusNew)
	}
	status := model.StatusNew
	if model.IsValidStatus(original) {
		status = model.Status(original)
	}

	meta := raw.Meta.Clone()
	meta[model.MetaOriginalStatus] = original
	for _, key := range relocated {
		if v := topLevel(raw, key); model.IsTruthy(v) {
			meta[key] = v
		}
	}

	return model.Lead{
		ID:           raw.ID,
		Name:         raw.Name,
		Email:        raw.Email,
		Phone:        raw.Phone,
		Notes:        raw.Notes,
		Revenue:      raw.Revenue,
		ConferenceID: raw.ConferenceID,
		OwnerID:      raw.OwnerID,
		Status:       status,
		ReminderDate: raw.ReminderDate,
		CapturedAt:   raw.CapturedAt,
		Meta:         meta,
	}
}

func topLevel(raw model.RawLead, key string) any {
	switch key {
	case model.MetaLocation:
		return raw.Location
	case model.MetaIntent:
		return raw.Intent
	case model.MetaSocialMedia:
		return raw.SocialMedia
	}
	return nil
}
