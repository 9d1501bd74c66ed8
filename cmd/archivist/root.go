package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Municipal cable-TV caption and Cablecast linking pipeline",
	Long: "archivist discovers newly recorded cable-access video on flex-server " +
		"mounts, transcribes and encodes broadcast captions, links recordings " +
		"to their upstream Cablecast shows and VODs, and schedules AJA HELO " +
		"capture devices from the upstream run schedule.",
	SilenceUsage: true,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}
