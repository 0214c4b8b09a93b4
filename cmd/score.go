package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/scorer"
)

var (
	scoreSignals string
	scoreStdin   bool
	scoreJSON    bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score intent signals",
	Long:  "Scores a JSON object of intent signals (urgency, ticket_size, investor_type, investment_type) and reports hot and meeting flags.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("score"); err != nil {
			return err
		}

		raw := scoreSignals
		if scoreStdin {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return eris.Wrap(err, "score: read stdin")
			}
			raw = string(b)
		}
		if raw == "" {
			return eris.New("score: --signals or --stdin is required")
		}

		return runScore(os.Stdout, scorer.New(cfg.Scoring), raw, scoreJSON)
	},
}

type scoreReport struct {
	Breakdown    scorer.Breakdown `json:"breakdown"`
	IsHot        bool             `json:"is_hot"`
	NeedsMeeting bool             `json:"needs_meeting"`
}

func runScore(out io.Writer, sc *scorer.Scorer, raw string, asJSON bool) error {
	signals, err := extract.ParseSignals(raw)
	if err != nil {
		return eris.Wrap(err, "score: parse signals")
	}

	b := sc.Explain(signals)
	report := scoreReport{
		Breakdown:    b,
		IsHot:        sc.IsHot(b.Total),
		NeedsMeeting: sc.NeedsMeeting(b.Total),
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Urgency:\t%d\n", b.Urgency)
	_, _ = fmt.Fprintf(w, "Ticket size:\t%d\n", b.TicketSize)
	_, _ = fmt.Fprintf(w, "Investor type:\t%d\n", b.InvestorType)
	_, _ = fmt.Fprintf(w, "Investment type:\t%d\n", b.InvestmentType)
	_, _ = fmt.Fprintf(w, "Priority score:\t%d\n", b.Total)
	_, _ = fmt.Fprintf(w, "Hot:\t%t\n", report.IsHot)
	_, _ = fmt.Fprintf(w, "Needs meeting:\t%t\n", report.NeedsMeeting)
	return w.Flush()
}

func init() {
	scoreCmd.Flags().StringVar(&scoreSignals, "signals", "", "intent signals as a JSON object")
	scoreCmd.Flags().BoolVar(&scoreStdin, "stdin", false, "read intent signals from stdin")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(scoreCmd)
}
