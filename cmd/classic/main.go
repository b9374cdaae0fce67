package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "classic",
	Short:   "Crash-log and mod-conflict analyzer for Bethesda-engine games",
	Long:    `classic parses crash logs, scans for known crash suspects, detects mod conflicts, validates game files, and emits markdown diagnostic reports.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default: ./classic.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddCommand(scanLogsCmd)
	rootCmd.AddCommand(scanGameCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(validateFilesCmd)
	rootCmd.AddCommand(generateReportCmd)
}

// Exit codes per spec.md §6: 0 success, 1 analysis failures present, 2
// critical file-validation issues, other non-zero for config errors.
const (
	exitOK                  = 0
	exitAnalysisFailures    = 1
	exitCriticalValidation  = 2
	exitConfigError         = 3
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitConfigError)
	}
}
