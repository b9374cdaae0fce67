package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/classic-analyzer/classic-core/pkg/gamefile"
	"github.com/classic-analyzer/classic-core/pkg/logging"
)

var validateFilesCmd = &cobra.Command{
	Use:   "validate-files",
	Short: "Validate a specific list of game data files",
	Long:  "Runs the binary validators against an explicit file list rather than walking a whole directory.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidateFiles,
}

func init() {
	validateFilesCmd.Flags().StringArray("exempt", nil, "glob pattern exempting a relative path from format-mismatch warnings")
}

func runValidateFiles(cmd *cobra.Command, args []string) error {
	exempt, _ := cmd.Flags().GetStringArray("exempt")

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	initLogger(settings)

	critical := false
	errorCount := 0

	for _, path := range args {
		category, ok := gamefile.CategoryForPath(path)
		if !ok {
			logging.Warn("unrecognized file category, skipping", "path", path)
			continue
		}

		result, verr := gamefile.Validate(category, path, path, exempt)
		if verr != nil {
			return fmt.Errorf("validate %q: %w", path, verr)
		}

		switch result.Status {
		case gamefile.StatusCritical:
			critical = true
			fmt.Printf("[CRITICAL] %s: %s\n", path, result.Issue)
		case gamefile.StatusError:
			errorCount++
			fmt.Printf("[ERROR] %s: %s\n", path, result.Issue)
		case gamefile.StatusWarning:
			fmt.Printf("[WARN] %s: %s\n", path, result.Issue)
		case gamefile.StatusValid:
			if !quiet {
				fmt.Printf("[OK] %s\n", path)
			}
		}
	}

	if critical {
		os.Exit(exitCriticalValidation)
	}
	if errorCount > 0 {
		os.Exit(exitAnalysisFailures)
	}
	return nil
}
