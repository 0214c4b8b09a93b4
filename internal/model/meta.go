package model

import (
	"encoding/json"
	"math"
)

// Recognized meta_data keys. Unknown keys are kept as-is.
const (
	MetaIntent         = "intent"
	MetaTicketSize     = "ticket_size"
	MetaUrgency        = "urgency"
	MetaInvestorType   = "investor_type"
	MetaInvestmentType = "investment_type"
	MetaRiskProfile    = "risk_profile"
	MetaPriorityScore  = "priority_score"
	MetaIsHot          = "is_hot"
	MetaMeetingLink    = "meeting_link"
	MetaOriginalStatus = "original_status"
	MetaLocation       = "location"
	MetaSocialMedia    = "social_media"
)

// Meta is the open metadata mapping stored on a lead.
type Meta map[string]any

// Has reports whether key is present, regardless of its value.
func (m Meta) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Truthy reports whether key is present with a truthy value.
func (m Meta) Truthy(key string) bool {
	v, ok := m[key]
	return ok && IsTruthy(v)
}

// String returns the value at key if it is a string.
func (m Meta) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the value at key as an int. Non-numeric values yield 0.
func (m Meta) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(math.Round(v))
	case float32:
		return int(math.Round(float64(v)))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return int(math.Round(f))
		}
	}
	return 0
}

// Clone returns a deep copy of m. Nested maps and slices are copied so the
// result can be mutated without touching m. A nil Meta clones to an empty one.
func (m Meta) Clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Meta(t).Clone())
	case Meta:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// IsTruthy applies loose truthiness: nil, empty strings, false, numeric zero,
// and empty collections are falsy.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case map[string]any:
		return len(t) > 0
	case Meta:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	default:
		return true
	}
}
