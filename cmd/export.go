package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-engine/internal/crm"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/pkg/salesforce"
)

var exportDryRun bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push Qualified and Won leads to Salesforce",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		mode := "export"
		if exportDryRun {
			mode = "pipeline"
		}
		env, err := initEnv(ctx, cfg, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		code, leads, err := env.Store.GetLeads(ctx, store.LeadQuery{
			Statuses: []model.Status{model.StatusQualified, model.StatusWon},
		})
		if err != nil {
			return eris.Wrap(err, "export: read leads")
		}
		if !store.IsSuccess(code) {
			return eris.Errorf("export: store returned %d", code)
		}

		var client salesforce.Client
		if !exportDryRun {
			sf := cfg.Salesforce
			client, err = salesforce.Connect(salesforce.Creds{
				LoginURL:      sf.LoginURL,
				ClientID:      sf.ClientID,
				ClientSecret:  sf.ClientSecret,
				Username:      sf.Username,
				Password:      sf.Password,
				SecurityToken: sf.SecurityToken,
			})
			if err != nil {
				return err
			}
		}

		st, err := crm.NewExporter(client, cfg.Salesforce.LeadSource, crm.WithDryRun(exportDryRun)).Export(ctx, leads)
		fmt.Fprintf(os.Stdout, "Eligible: %d  Skipped: %d  Exported: %d  Failed: %d\n", st.Eligible, st.Skipped, st.Exported, st.Failed)
		return err
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportDryRun, "dry-run", false, "build Salesforce records without sending them")
	rootCmd.AddCommand(exportCmd)
}
