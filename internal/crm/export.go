// Package crm exports qualified leads to Salesforce.
package crm

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/pkg/salesforce"
)

// Salesforce Lead status picklist values.
const (
	sfStatusWorking   = "Working - Contacted"
	sfStatusConverted = "Closed - Converted"
)

// DefaultCompany fills the required Company field for individual investors.
const DefaultCompany = "Individual"

// Stats summarizes one export run.
type Stats struct {
	Eligible int `json:"eligible"`
	Skipped  int `json:"skipped"`
	Exported int `json:"exported"`
	Failed   int `json:"failed"`
}

// Exporter pushes Qualified and Won leads to Salesforce.
type Exporter struct {
	client     salesforce.Client
	leadSource string
	dryRun     bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithDryRun builds records without sending them.
func WithDryRun(dry bool) Option {
	return func(e *Exporter) { e.dryRun = dry }
}

// NewExporter creates an Exporter. leadSource is written to LeadSource.
func NewExporter(client salesforce.Client, leadSource string, opts ...Option) *Exporter {
	e := &Exporter{client: client, leadSource: leadSource}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eligible reports whether a lead is exported.
func Eligible(l model.Lead) bool {
	return l.Status == model.StatusQualified || l.Status == model.StatusWon
}

// Export sends eligible leads whose email is not already on a Salesforce
// Lead. Per-record failures are counted; only a failed call is returned.
func (e *Exporter) Export(ctx context.Context, leads []model.Lead) (Stats, error) {
	var st Stats
	var eligible []model.Lead
	for _, l := range leads {
		if Eligible(l) {
			eligible = append(eligible, l)
		}
	}
	st.Eligible = len(eligible)
	if len(eligible) == 0 {
		return st, nil
	}

	var existing map[string]bool
	if !e.dryRun {
		var emails []string
		for _, l := range eligible {
			if l.Email != "" {
				emails = append(emails, l.Email)
			}
		}
		var err error
		existing, err = salesforce.ExistingLeadEmails(ctx, e.client, emails)
		if err != nil {
			return st, err
		}
	}

	var batch []model.Lead
	var records []map[string]any
	for _, l := range eligible {
		if l.Email != "" && existing[strings.ToLower(l.Email)] {
			st.Skipped++
			continue
		}
		batch = append(batch, l)
		records = append(records, e.Record(l))
	}

	if e.dryRun {
		st.Exported = len(records)
		zap.L().Info("crm: dry run", zap.Int("records", len(records)))
		return st, nil
	}

	results, err := salesforce.InsertLeads(ctx, e.client, records)
	for i, r := range results {
		if r.Success {
			st.Exported++
			continue
		}
		st.Failed++
		zap.L().Warn("crm: lead export rejected",
			zap.String("lead_id", batch[i].ID),
			zap.Strings("errors", r.Errors),
		)
	}
	if err != nil {
		st.Failed += len(records) - len(results)
		return st, err
	}

	zap.L().Info("crm: export complete",
		zap.Int("eligible", st.Eligible),
		zap.Int("skipped", st.Skipped),
		zap.Int("exported", st.Exported),
		zap.Int("failed", st.Failed),
	)
	return st, nil
}

// Record maps a lead to Salesforce Lead fields.
func (e *Exporter) Record(l model.Lead) map[string]any {
	first, last := splitName(l.Name)
	rec := map[string]any{
		"LastName":    last,
		"Company":     DefaultCompany,
		"Description": description(l),
		"Status":      sfStatusWorking,
	}
	if first != "" {
		rec["FirstName"] = first
	}
	if c := l.Meta.String("company"); c != "" {
		rec["Company"] = c
	}
	if l.Email != "" {
		rec["Email"] = l.Email
	}
	if l.Phone != "" {
		rec["Phone"] = l.Phone
	}
	if e.leadSource != "" {
		rec["LeadSource"] = e.leadSource
	}
	if l.Status == model.StatusWon {
		rec["Status"] = sfStatusConverted
	}
	return rec
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", "Unknown"
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

func description(l model.Lead) string {
	var lines []string
	if l.Notes != "" {
		lines = append(lines, l.Notes)
	}
	for _, key := range []string{model.MetaIntent, model.MetaTicketSize, model.MetaInvestmentType, model.MetaUrgency} {
		if v := l.Meta.String(key); v != "" {
			lines = append(lines, key+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
