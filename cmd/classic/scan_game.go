package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/classic-analyzer/classic-core/pkg/gamefile"
	"github.com/classic-analyzer/classic-core/pkg/logging"
)

var scanGameCmd = &cobra.Command{
	Use:   "scan-game",
	Short: "Validate game data files (DDS/BA2/WAV/PEX)",
	Long:  "Walks a game data directory and runs the binary validators against recognized file categories.",
	RunE:  runScanGame,
}

func init() {
	scanGameCmd.Flags().String("scan-path", "", "game data directory (required)")
	scanGameCmd.Flags().StringArray("exempt", nil, "glob pattern exempting a relative path from format-mismatch warnings")
	scanGameCmd.MarkFlagRequired("scan-path")
}

func runScanGame(cmd *cobra.Command, args []string) error {
	scanPath, _ := cmd.Flags().GetString("scan-path")
	exempt, _ := cmd.Flags().GetStringArray("exempt")

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	initLogger(settings)

	critical := false
	errorCount := 0

	walkErr := filepath.WalkDir(scanPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		category, ok := gamefile.CategoryForPath(path)
		if !ok {
			return nil
		}

		rel, relErr := filepath.Rel(scanPath, path)
		if relErr != nil {
			rel = path
		}

		result, verr := gamefile.Validate(category, path, rel, exempt)
		if verr != nil {
			logging.Warn("validator error", "path", path, "error", verr.Error())
			return nil
		}

		switch result.Status {
		case gamefile.StatusCritical:
			critical = true
			logging.Error("critical validation issue", "path", path, "issue", result.Issue)
		case gamefile.StatusError:
			errorCount++
			logging.Warn("validation error", "path", path, "issue", result.Issue)
		case gamefile.StatusWarning:
			logging.Warn("validation warning", "path", path, "issue", result.Issue)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk scan path %q: %w", scanPath, walkErr)
	}

	if critical {
		os.Exit(exitCriticalValidation)
	}
	if errorCount > 0 {
		os.Exit(exitAnalysisFailures)
	}
	return nil
}
