package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pointwatch/pointwatch/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pointwatch",
	Short: "Pointwatch - keep points service connections alive",
	Long: `Pointwatch maintains long-lived authenticated websocket connections to a
points/telemetry service, one per configured forward proxy, reconnecting
forever across network failures and tracking accrued points in a small
persisted state document.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"pointwatch version %s\nCommit: %s\nBuilt: %s\n",
		version.Version, version.Commit, version.BuildTime,
	))

	rootCmd.AddCommand(runCmd)
}
