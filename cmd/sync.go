package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/intake"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/source"
	"github.com/sells-group/lead-engine/pkg/notion"
)

var (
	syncFile   string
	syncNotion bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile a lead batch into the store",
	Long:  "Loads leads from a JSON, CSV, or XLSX file or from the Notion leads database, inserts them one at a time, and waits for enrichment.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		batch, err := loadBatch(ctx, cfg, syncFile, syncNotion)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg, "sync")
		if err != nil {
			return err
		}

		rec := intake.NewReconciler(env.Store, intake.NewEnricher(env.Store, env.Scorer), env.Pool)
		res := rec.ReconcileBatch(ctx, batch)

		// Close drains the pool, so enrichment has finished before the summary.
		env.Close()
		succeeded, failed := env.Pool.Stats()

		formatSyncResult(os.Stdout, len(batch), res, succeeded, failed)
		return nil
	},
}

func loadBatch(ctx context.Context, c *config.Config, file string, fromNotion bool) ([]model.RawLead, error) {
	switch {
	case file != "" && fromNotion:
		return nil, eris.New("sync: use either --file or --notion, not both")
	case file != "":
		return source.ReadFile(file)
	case fromNotion:
		if c.Notion.Token == "" {
			return nil, eris.New("sync: notion.token is required")
		}
		src := source.NewNotionSource(notion.NewClient(c.Notion.Token), c.Notion.LeadDB)
		return src.Leads(ctx)
	default:
		return nil, eris.New("sync: one of --file or --notion is required")
	}
}

func formatSyncResult(out io.Writer, submitted int, res intake.Result, enrichOK, enrichFailed int64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Submitted:\t%d\n", submitted)
	_, _ = fmt.Fprintf(w, "Accepted:\t%d\n", len(res.Accepted))
	_, _ = fmt.Fprintf(w, "Rejected:\t%d\n", res.Rejected)
	_, _ = fmt.Fprintf(w, "  Duplicates:\t%d\n", res.Duplicates)
	if res.Unconfirmed > 0 {
		_, _ = fmt.Fprintf(w, "Unconfirmed:\t%d\n", res.Unconfirmed)
	}
	_, _ = fmt.Fprintf(w, "Enrichment tasks:\t%d ok, %d failed\n", enrichOK, enrichFailed)
	_ = w.Flush()
}

func init() {
	syncCmd.Flags().StringVar(&syncFile, "file", "", "read leads from a .json, .csv, or .xlsx file")
	syncCmd.Flags().BoolVar(&syncNotion, "notion", false, "read leads from the Notion leads database")
	rootCmd.AddCommand(syncCmd)
}
