package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/classic-analyzer/classic-core/pkg/config"
	"github.com/classic-analyzer/classic-core/pkg/logging"
	"github.com/classic-analyzer/classic-core/pkg/progress"
	"github.com/classic-analyzer/classic-core/pkg/rules"
)

func loadSettings() (*config.Settings, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("classic.yaml"); err == nil {
			path = "classic.yaml"
		}
	}

	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Logging.Level = "debug"
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func initLogger(settings *config.Settings) {
	logging.InitGlobal(logging.Config{
		Level:  logging.Level(settings.Logging.Level),
		Format: logging.Format(settings.Logging.Format),
	})
}

func buildSink() progress.Sink {
	if quiet {
		return progress.NopSink{}
	}
	return progress.NewTextSink(func(line string) { fmt.Println(line) })
}

// loadRuleStores opens the MAIN rule store (from rulesPath, defaulting
// to ./rules/main.yaml) and an optional GAME store under modsPath, per
// spec.md §4.2's MAIN+GAME precedence.
func loadRuleStores(rulesPath, modsPath string) (*rules.Store, *rules.Store, error) {
	if rulesPath == "" {
		rulesPath = filepath.Join("rules", "main.yaml")
	}

	if _, err := os.Stat(rulesPath); err != nil {
		return nil, nil, fmt.Errorf("load MAIN rule store: %w", err)
	}

	main, err := rules.New(rules.Main, rulesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load MAIN rule store: %w", err)
	}

	if modsPath == "" {
		return main, nil, nil
	}

	gamePath := filepath.Join(modsPath, "game.yaml")
	if _, statErr := os.Stat(gamePath); statErr != nil {
		return main, nil, nil
	}

	game, err := rules.New(rules.Game, gamePath)
	if err != nil {
		return main, nil, fmt.Errorf("load GAME rule store: %w", err)
	}
	return main, game, nil
}

// discoverLogs expands scanPath into an ordered list of crash-log
// file paths: a single file is returned as-is, a directory is
// scanned (non-recursively) for files matching the crash-log naming
// convention.
func discoverLogs(scanPath string) ([]string, error) {
	info, err := os.Stat(scanPath)
	if err != nil {
		return nil, fmt.Errorf("scan path %q: %w", scanPath, err)
	}
	if !info.IsDir() {
		return []string{scanPath}, nil
	}

	entries, err := os.ReadDir(scanPath)
	if err != nil {
		return nil, fmt.Errorf("read scan directory %q: %w", scanPath, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), "-crash.log") || strings.HasSuffix(strings.ToLower(name), ".log") {
			paths = append(paths, filepath.Join(scanPath, name))
		}
	}
	return paths, nil
}
