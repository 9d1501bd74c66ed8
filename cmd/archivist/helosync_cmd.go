package main

import (
	"github.com/spf13/cobra"

	"github.com/flexcoop/archivist/internal/config"
)

var heloSyncCmd = &cobra.Command{
	Use:   "helo-sync",
	Short: "Refresh HELO schedule entries from upstream runs and trigger due actions",
	Long:  "Runs one pass of C11: pulls upcoming runs from upstream, upserts device schedule entries, and starts/stops recording or streaming for any entry that has entered its pre-roll window.",
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

		sched := app.heloScheduler()
		tickErr := sched.Tick(cmd.Context())

		report := map[string]interface{}{
			"entries": sched.Entries(),
		}
		if tickErr != nil {
			report["error"] = tickErr.Error()
		}
		if err := emitReport(report); err != nil {
			return err
		}
		return tickErr
	},
}

func init() {
	rootCmd.AddCommand(heloSyncCmd)
}
