package source

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/pkg/notion"
)

// NotionSource reads leads from a Notion database.
type NotionSource struct {
	client notion.Client
	dbID   string
}

// NewNotionSource creates a NotionSource over the database dbID.
func NewNotionSource(client notion.Client, dbID string) *NotionSource {
	return &NotionSource{client: client, dbID: dbID}
}

// Leads maps every page of the database to a RawLead. The page id becomes
// the lead id, so syncing the same database twice yields duplicates rather
// than copies. Pages without a name are skipped.
func (s *NotionSource) Leads(ctx context.Context) ([]model.RawLead, error) {
	if s.dbID == "" {
		return nil, eris.New("source: notion leads database not configured")
	}
	pages, err := notion.QueryLeads(ctx, s.client, s.dbID)
	if err != nil {
		return nil, err
	}

	leads := make([]model.RawLead, 0, len(pages))
	for _, p := range pages {
		props := p.Properties
		name := notion.PlainText(props, "Name")
		if name == "" {
			zap.L().Debug("source: skipping unnamed notion page", zap.String("page_id", p.ID.String()))
			continue
		}
		lead := model.RawLead{
			ID:     normalizePageID(p.ID.String()),
			Name:   name,
			Email:  notion.PlainText(props, "Email"),
			Phone:  notion.PlainText(props, "Phone"),
			Status: notion.PlainText(props, "Status"),
			Notes:  notion.PlainText(props, "Notes"),
		}
		if v := notion.PlainText(props, "Location"); v != "" {
			lead.Location = v
		}
		if v := notion.PlainText(props, "Intent"); v != "" {
			lead.Intent = v
		}
		if rev, ok := notion.Number(props, "Revenue"); ok {
			lead.Revenue = &rev
		}
		leads = append(leads, lead)
	}

	zap.L().Info("source: notion leads loaded",
		zap.Int("pages", len(pages)),
		zap.Int("leads", len(leads)),
	)
	return leads, nil
}

// normalizePageID canonicalizes a page id so the dashed and undashed Notion
// forms map to the same lead.
func normalizePageID(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return u.String()
}
