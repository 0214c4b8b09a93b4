package model

// IntentSignals is the ephemeral key/value bag produced by intent extraction.
// Absent keys mean unknown, not false.
type IntentSignals map[string]string

// SignalKeys are the keys an extractor may report.
var SignalKeys = []string{
	MetaInvestmentType,
	MetaTicketSize,
	MetaUrgency,
	MetaInvestorType,
	MetaRiskProfile,
}

// IsSignalKey reports whether key is a recognized signal key.
func IsSignalKey(key string) bool {
	for _, k := range SignalKeys {
		if k == key {
			return true
		}
	}
	return false
}
