package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-engine/internal/api"
	"github.com/sells-group/lead-engine/internal/pipeline"
	"github.com/sells-group/lead-engine/internal/store"
)

var pipelineFormat string

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Print the sales pipeline board",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		code, leads, err := env.Store.GetLeads(ctx, store.LeadQuery{NewestFirst: true})
		if err != nil {
			return eris.Wrap(err, "pipeline: read leads")
		}
		if !store.IsSuccess(code) {
			return eris.Errorf("pipeline: store returned %d", code)
		}

		board := pipeline.NewClassifier(env.Merger).Classify(leads)
		return renderBoard(os.Stdout, board, api.NewDisplay(cfg.Display.TimeZone), pipelineFormat)
	},
}

// boardRow is the compact lead shape printed by the CLI.
type boardRow struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Status        string `yaml:"status"`
	PriorityScore int    `yaml:"priority_score"`
	MeetingLink   string `yaml:"meeting_link,omitempty"`
	CreatedAt     string `yaml:"created_at,omitempty"`
}

func boardRows(board *pipeline.Board, d *api.Display, bucket pipeline.Bucket) []boardRow {
	leads := board.Leads(bucket)
	rows := make([]boardRow, 0, len(leads))
	for _, l := range leads {
		rows = append(rows, boardRow{
			ID:            l.ID,
			Name:          l.Name,
			Status:        string(l.Status),
			PriorityScore: l.PriorityScore(),
			MeetingLink:   l.MeetingLink,
			CreatedAt:     d.Format(l.CreatedAt),
		})
	}
	return rows
}

func overflowNames(board *pipeline.Board) []string {
	var names []string
	for _, s := range board.OverflowStatuses() {
		names = append(names, string(s))
	}
	return names
}

func renderBoard(out io.Writer, board *pipeline.Board, d *api.Display, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d.Board(board))
	case "yaml":
		return renderBoardYAML(out, board, d)
	case "table", "":
		renderBoardTable(out, board, d)
		return nil
	default:
		return eris.Errorf("pipeline: unknown format %q (want json, yaml, or table)", format)
	}
}

// renderBoardYAML builds the document node by node so columns keep board
// order.
func renderBoardYAML(out io.Writer, board *pipeline.Board, d *api.Display) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, bk := range board.Buckets() {
		var val yaml.Node
		if err := val.Encode(boardRows(board, d, bk)); err != nil {
			return eris.Wrapf(err, "pipeline: encode %s", bk)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(bk)},
			&val,
		)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "pipeline: encode yaml")
	}
	return enc.Close()
}

func renderBoardTable(out io.Writer, board *pipeline.Board, d *api.Display) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BUCKET\tID\tNAME\tSCORE\tMEETING\tCREATED")
	_, _ = fmt.Fprintln(w, "------\t--\t----\t-----\t-------\t-------")
	for _, bk := range board.Buckets() {
		rows := boardRows(board, d, bk)
		if len(rows) == 0 {
			_, _ = fmt.Fprintf(w, "%s\t-\t\t\t\t\n", bk)
			continue
		}
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				bk, truncateID(r.ID), r.Name, r.PriorityScore, r.MeetingLink, r.CreatedAt)
		}
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d leads\n", board.Total())
	if names := overflowNames(board); len(names) > 0 {
		_, _ = fmt.Fprintf(out, "Statuses without a column (shown under Other): %s\n", strings.Join(names, ", "))
	}
}

// truncateID returns the first 8 characters of an id for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	pipelineCmd.Flags().StringVar(&pipelineFormat, "format", "table", "output format: json, yaml, or table")
	rootCmd.AddCommand(pipelineCmd)
}
