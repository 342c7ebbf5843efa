package history

// This file contains utilities for loading the replay run records written
// by the replay command.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/perfgo/mysqlwarm/model"
	"github.com/rs/zerolog"
)

type Entry struct {
	Run model.ReplayRun
	// FullPath is the directory holding the record
	FullPath string
}

// LoadEntries loads every replay run record found below root.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", root, err)
	}

	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !model.IsReplayRunFile(d.Name()) {
			return nil
		}

		run, err := parseRunJSON(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to parse replay run record")
			return nil
		}

		entries = append(entries, Entry{
			Run:      run,
			FullPath: filepath.Dir(path),
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return entries, nil
}

// parseRunJSON parses a replay run record.
func parseRunJSON(path string) (model.ReplayRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ReplayRun{}, err
	}

	var run model.ReplayRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.ReplayRun{}, err
	}

	return run, nil
}
