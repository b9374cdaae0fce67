package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/classic-analyzer/classic-core/pkg/conflict"
	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/plugin"
	"github.com/classic-analyzer/classic-core/pkg/report"
	"github.com/classic-analyzer/classic-core/pkg/rules"
	"github.com/classic-analyzer/classic-core/pkg/suspect"
)

var generateReportCmd = &cobra.Command{
	Use:   "generate-report",
	Short: "Render a markdown report for a single crash log",
	Long:  "Runs the full per-log analysis pipeline on one log and writes its report, without going through the scheduler.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerateReport,
}

func init() {
	generateReportCmd.Flags().String("mods-path", "", "path to the game's mod/plugin directory")
	generateReportCmd.Flags().String("rules", "", "path to the MAIN rule database YAML")
	generateReportCmd.Flags().String("output", "", "report output directory (overrides settings)")
	generateReportCmd.Flags().Bool("show-formids", false, "resolve FormID references in the call stack against the plugin list")
}

func runGenerateReport(cmd *cobra.Command, args []string) error {
	logPath := args[0]
	modsPath, _ := cmd.Flags().GetString("mods-path")
	rulesPath, _ := cmd.Flags().GetString("rules")
	output, _ := cmd.Flags().GetString("output")
	showFormIDs, _ := cmd.Flags().GetBool("show-formids")

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	initLogger(settings)

	if output != "" {
		settings.Report.OutputDir = output
	}
	if !showFormIDs {
		showFormIDs = settings.Scan.ShowFormIDs
	}

	main, game, err := loadRuleStores(rulesPath, modsPath)
	if err != nil {
		return err
	}
	db := rules.LoadDatabase(main, game)

	parser := crashlog.New()
	log, err := parser.ParseFile(logPath)
	if err != nil {
		return fmt.Errorf("parse %q: %w", logPath, err)
	}

	scanner := suspect.New(db)
	detector := conflict.New(db)

	suspects := scanner.Scan(log)
	findings := detector.Detect(log)
	pluginAnalysis := plugin.Analyze(log.Plugins)

	var resolvedFormIDs []report.ResolvedFormID
	if showFormIDs {
		for _, id := range plugin.ExtractFormIDs(log.CallStackText()) {
			filename, ok := id.Resolve(log.Plugins)
			resolvedFormIDs = append(resolvedFormIDs, report.ResolvedFormID{
				Hex:      fmt.Sprintf("%08X", uint32(id)),
				Filename: filename,
				Resolved: ok,
			})
		}
	}

	gen := report.New(settings.Report.OutputDir)
	path, err := gen.WriteLogReport(report.LogReport{
		Log:             log,
		Suspects:        suspects,
		Findings:        findings,
		PluginAnalysis:  pluginAnalysis,
		ResolvedFormIDs: resolvedFormIDs,
	})
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Println(path)
	return nil
}
