// Package normalize turns noisy lead input into comparable values.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// MagnitudeClass buckets a ticket size for scoring.
type MagnitudeClass int

const (
	MagnitudeNone MagnitudeClass = iota
	MagnitudeMid
	MagnitudeHigh
)

// String implements fmt.Stringer.
func (c MagnitudeClass) String() string {
	switch c {
	case MagnitudeMid:
		return "MID"
	case MagnitudeHigh:
		return "HIGH"
	default:
		return "NONE"
	}
}

// midLakhs is the lakh amount at which a ticket becomes MID.
const midLakhs = 50

// Magnitude is a parsed ticket size. Value is nil when nothing matched.
type Magnitude struct {
	Class MagnitudeClass
	Value *float64
	Crore bool
}

// ticketRe matches a decimal amount followed by a lakh or crore unit.
var ticketRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(crore|cr|lakh|l)`)

// ParseTicketMagnitude extracts an Indian-notation amount ("50 Lakhs",
// "1cr", "2.5 crore") from free text. Anything tagged crore is HIGH, a lakh
// amount of at least 50 is MID, everything else is NONE. Malformed input
// yields NONE and never fails.
func ParseTicketMagnitude(raw string) Magnitude {
	m := ticketRe.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		return Magnitude{Class: MagnitudeNone}
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Magnitude{Class: MagnitudeNone}
	}

	out := Magnitude{Value: &v, Crore: strings.HasPrefix(m[2], "cr")}
	switch {
	case out.Crore:
		out.Class = MagnitudeHigh
	case v >= midLakhs:
		out.Class = MagnitudeMid
	default:
		out.Class = MagnitudeNone
	}
	return out
}
