package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/classic-analyzer/classic-core/pkg/control"
	"github.com/classic-analyzer/classic-core/pkg/logging"
	"github.com/classic-analyzer/classic-core/pkg/orchestrator"
	"github.com/classic-analyzer/classic-core/pkg/scheduler"
)

var scanLogsCmd = &cobra.Command{
	Use:   "scan-logs",
	Short: "Analyze one or more crash logs",
	Long:  "Parses crash logs, scans for known suspects, detects mod conflicts, and writes markdown reports.",
	RunE:  runScanLogs,
}

func init() {
	scanLogsCmd.Flags().String("scan-path", "", "crash log file or directory (required)")
	scanLogsCmd.Flags().String("mods-path", "", "path to the game's mod/plugin directory")
	scanLogsCmd.Flags().String("rules", "", "path to the MAIN rule database YAML")
	scanLogsCmd.Flags().String("output", "", "report output directory (overrides settings)")
	scanLogsCmd.Flags().Int("parallel", 0, "max concurrent log analyses (0 = scheduler-chosen)")
	scanLogsCmd.Flags().Bool("continue-on-error", true, "continue the batch when a log fails")
	scanLogsCmd.MarkFlagRequired("scan-path")
}

func runScanLogs(cmd *cobra.Command, args []string) error {
	scanPath, _ := cmd.Flags().GetString("scan-path")
	modsPath, _ := cmd.Flags().GetString("mods-path")
	rulesPath, _ := cmd.Flags().GetString("rules")
	output, _ := cmd.Flags().GetString("output")
	parallel, _ := cmd.Flags().GetInt("parallel")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	initLogger(settings)

	if output != "" {
		settings.Report.OutputDir = output
		settings.Scan.OutputDir = output
	}

	logPaths, err := discoverLogs(scanPath)
	if err != nil {
		return err
	}
	if len(logPaths) == 0 {
		return fmt.Errorf("no crash logs found under %q", scanPath)
	}

	main, game, err := loadRuleStores(rulesPath, modsPath)
	if err != nil {
		return err
	}

	token := control.New(context.Background())
	token.Start()

	orch := orchestrator.New(settings, main, game, token, buildSink())

	req := orchestrator.ScanRequest{
		LogPaths:         logPaths,
		OutputDir:        settings.Report.OutputDir,
		ModsPath:         modsPath,
		MaxConcurrent:    parallel,
		ContinueOnError:  continueOnError,
		BatchSize:        settings.Scheduler.BatchSize,
		PreferredMode:    scheduler.Mode(settings.Scheduler.PreferredMode),
		PerLogTimeout:    settings.Scheduler.PerLogTimeout,
		MoveUnsolved:     settings.Scan.MoveUnsolved,
		BackupDir:        settings.Scan.BackupDir,
		FCXMode:          settings.Scan.FCXMode,
		Simplify:         settings.Scan.Simplify,
		ShowFormIDValues: settings.Scan.ShowFormIDs,
	}

	result, runErr := orch.Run(token.Context(), req)
	if runErr != nil && len(result.DetailedResults) == 0 {
		return runErr
	}

	logging.Info("scan complete",
		"successful", result.SuccessfulCount,
		"failed", result.FailedCount,
		"partial", result.PartialCount,
		"elapsed", result.Duration.String(),
	)

	if result.FailedCount > 0 {
		os.Exit(exitAnalysisFailures)
	}
	return nil
}
