package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flexcoop/archivist/internal/config"
	"github.com/flexcoop/archivist/internal/monitor"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Print aggregate health across upstream, link store, flex mounts, and queue depth",
	Long:  "Runs C12's health manager once: required checks on upstream and the link store, optional checks per flex mount and queue depth, and reports the worst observed status.",
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

		report := app.Monitor.Run(cmd.Context())
		if err := emitReport(report); err != nil {
			return err
		}

		if report.Status == monitor.StatusCritical {
			return fmt.Errorf("health status critical")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
