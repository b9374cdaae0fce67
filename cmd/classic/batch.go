package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/classic-analyzer/classic-core/pkg/control"
	"github.com/classic-analyzer/classic-core/pkg/orchestrator"
	"github.com/classic-analyzer/classic-core/pkg/scheduler"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Scan a large directory of crash logs with adaptive scheduling",
	Long:  "Like scan-logs, but always lets the scheduler adapt strategy mid-run and prints a per-log result table.",
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().String("scan-path", "", "directory of crash logs (required)")
	batchCmd.Flags().String("mods-path", "", "path to the game's mod/plugin directory")
	batchCmd.Flags().String("rules", "", "path to the MAIN rule database YAML")
	batchCmd.Flags().String("output", "", "report output directory (overrides settings)")
	batchCmd.Flags().Int("parallel", 0, "max concurrent log analyses (0 = scheduler-chosen)")
	batchCmd.Flags().Bool("continue-on-error", true, "continue the batch when a log fails")
	batchCmd.MarkFlagRequired("scan-path")
}

func runBatch(cmd *cobra.Command, args []string) error {
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
		PreferredMode:    scheduler.ModeAdaptive,
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

	if !quiet {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Log", "Status", "Suspects", "Conflicts", "Report"})
		for _, d := range result.DetailedResults {
			status := "success"
			if !d.Succeeded {
				status = "failed"
			}
			table.Append([]string{d.Path, status, fmt.Sprint(len(d.Suspects)), fmt.Sprint(len(d.Findings)), d.ReportPath})
		}
		table.Render()
		fmt.Printf("summary written to %s\n", result.SummaryPath)
	}

	if result.FailedCount > 0 {
		os.Exit(exitAnalysisFailures)
	}
	return nil
}
