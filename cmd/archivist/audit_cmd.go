package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flexcoop/archivist/internal/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that each city's most recent VOD carries captions",
	Long:  "Runs one pass of C13: for every configured city, finds the latest show and its mirrored VOD and checks for a caption sidecar, alerting at most once per (city, VOD) per day.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		bootstrapLogger(cfg)

		app, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		report := app.Auditor.Run(cmd.Context())
		if err := emitReport(report); err != nil {
			return err
		}

		needsAttention := 0
		for _, c := range report.Cities {
			if c.Alerted || c.Inconclusive {
				needsAttention++
			}
		}
		if needsAttention > 0 {
			return fmt.Errorf("caption audit found %d city/cities needing attention", needsAttention)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
