package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flexcoop/archivist/internal/config"
	"github.com/flexcoop/archivist/internal/counters"
	"github.com/flexcoop/archivist/internal/jobqueue"
	"github.com/flexcoop/archivist/internal/seenset"
)

// sweepMaxPerCity and sweepScanLimit bound one autopriority sweep pass
// (spec.md §4.1/§4.6): newest maxPerCity uncaptioned assets per city, chosen
// from the scanLimit newest candidate videos per mount.
const (
	sweepMaxPerCity = 1
	sweepScanLimit  = 50
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Scan flex-server mounts and enqueue newest uncaptioned recordings",
	Long:  "Runs one autopriority sweep (C1+C2+C5): discovers the newest uncaptioned video per city and enqueues a caption job for each, skipping anything already in the seen-set.",
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

		report := runSweep(cmd.Context(), app)
		return emitReport(report)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(ctx context.Context, app *App) counters.SweepResult {
	logger := app.Logger

	picks, err := app.Scanner.PickNewestUncaptioned(ctx, sweepMaxPerCity, sweepScanLimit)
	if err != nil {
		logger.Error().Err(err).Msg("sweep: discovery failed")
		return counters.SweepResult{}
	}

	result := counters.SweepResult{
		Scanned:          picks.ScannedTotal,
		SkippedCaptioned: picks.SkippedCaptioned,
		EnqueuedByCity:   make(map[string]int, len(picks.Picks)),
	}

	for cityID, assets := range picks.Picks {
		for _, asset := range assets {
			if app.SeenSet.Contains(ctx, asset.Path) {
				result.SkippedAlreadyQueued++
				continue
			}

			jobID, alreadyQueued := app.Queue.Enqueue(asset.Path, jobqueue.PriorityNormal, jobqueue.Metadata{"city_id": cityID})
			if alreadyQueued {
				result.SkippedAlreadyQueued++
				continue
			}

			app.SeenSet.Mark(ctx, asset.Path, seenset.DefaultTTL)
			result.Enqueued++
			result.EnqueuedByCity[cityID]++
			logger.Info().Str("job_id", jobID).Str("city_id", cityID).Str("path", asset.Path).Msg("sweep: enqueued caption job")
		}
	}

	app.Counters.Record(ctx, result)
	return result
}

// emitReport prints v as indented JSON to stdout and returns a non-nil
// error only on encode failure; spec.md §6 gives every one-shot command a
// JSON report and a 0/1 exit code, which cobra derives from this error.
func emitReport(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
