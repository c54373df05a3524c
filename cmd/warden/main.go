package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - Invariant monitor and ticketing for distributed infrastructure",
	Long: `Warden watches distributed infrastructure subjects (a key-value
cluster, a rate-limiter fleet), detects sustained invariant violations
with grace periods and hysteresis, and turns them into deduplicated,
lifecycle-managed tickets for downstream diagnosis.

It also ships a sliding-window rate limiter service backed by the same
storage engine, with atomic check-and-increment semantics.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Warden version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
