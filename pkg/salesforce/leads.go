package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxBatchSize is the Collections API limit per request.
const MaxBatchSize = 200

// LeadObject is the Salesforce sObject leads are exported as.
const LeadObject = "Lead"

// InsertLeads sends records as Lead sObjects in batches of MaxBatchSize.
// Results are returned in input order; a failed batch stops the export and
// the results gathered so far are returned with the error.
func InsertLeads(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var all []CollectionResult
	for start := 0; start < len(records); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(records))
		results, err := c.InsertCollection(ctx, LeadObject, records[start:end])
		if err != nil {
			return all, eris.Wrapf(err, "sf: insert leads batch %d-%d", start, end)
		}
		all = append(all, results...)
	}
	return all, nil
}

type leadEmail struct {
	Email string `json:"Email" salesforce:"Email"`
}

// ExistingLeadEmails returns the subset of emails that already belong to a
// Salesforce Lead, lowercased.
func ExistingLeadEmails(ctx context.Context, c Client, emails []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(emails) == 0 {
		return found, nil
	}

	quoted := make([]string, 0, len(emails))
	for _, e := range emails {
		quoted = append(quoted, "'"+escapeSoql(e)+"'")
	}
	soql := fmt.Sprintf("SELECT Email FROM Lead WHERE Email IN (%s)", strings.Join(quoted, ", "))

	var rows []leadEmail
	if err := c.Query(ctx, soql, &rows); err != nil {
		return nil, eris.Wrap(err, "sf: existing lead emails")
	}
	for _, r := range rows {
		found[strings.ToLower(r.Email)] = true
	}
	return found, nil
}

var soqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeSoql escapes a value for use inside a SOQL string literal.
func escapeSoql(s string) string {
	return soqlEscaper.Replace(s)
}
