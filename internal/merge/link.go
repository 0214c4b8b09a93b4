package merge

import (
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/normalize"
)

// LinkGenerator builds meeting-room URLs. Links are derived from stable lead
// attributes, so regenerating a link for the same lead yields the same URL.
type LinkGenerator struct {
	baseURL    string
	leadPrefix string
	namePrefix string
}

// NewLinkGenerator creates a LinkGenerator from cfg, filling empty fields
// with the stock Jitsi settings.
func NewLinkGenerator(cfg config.MeetingConfig) *LinkGenerator {
	g := &LinkGenerator{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		leadPrefix: cfg.LeadPrefix,
		namePrefix: cfg.NamePrefix,
	}
	if g.baseURL == "" {
		g.baseURL = "https://meet.jit.si"
	}
	if g.leadPrefix == "" {
		g.leadPrefix = "finideas"
	}
	if g.namePrefix == "" {
		g.namePrefix = "FinSync"
	}
	return g
}

// ForLead returns the room link keyed by lead id.
func (g *LinkGenerator) ForLead(leadID string) string {
	return g.baseURL + "/" + g.leadPrefix + "-" + leadID
}

// ForName returns a readable room link built from the display name. The
// short suffix is a name-based UUID over id and name, so two leads sharing a
// name still get distinct rooms.
func (g *LinkGenerator) ForName(leadID, name string) string {
	token := normalize.RoomToken(name)
	if token == "" {
		token = "Lead"
	}
	suffix := uuid.NewSHA1(uuid.NameSpaceURL, []byte(leadID+"/"+name)).String()[:6]
	return g.baseURL + "/" + g.namePrefix + "_" + token + "_" + suffix
}
