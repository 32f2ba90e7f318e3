// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// SettingsFileName is the share settings file looked up in the share
// root. JSONC: comments and trailing commas are tolerated, since the
// file is meant to be hand-edited.
const SettingsFileName = ".tether.jsonc"

// ShareSettings configures what a host shares and how.
type ShareSettings struct {
	// OpenPaths are opened and pushed to the client as soon as the
	// session starts.
	OpenPaths []string `json:"openPaths"`

	// ReadonlyDefault withholds write access from a freshly joined
	// client until the host grants it. On by default; the settings
	// file opts a share into immediate write access.
	ReadonlyDefault bool `json:"readonlyDefault"`

	// Ignore patterns are matched against each path segment of a
	// listing entry; matching entries are omitted.
	Ignore []string `json:"ignore"`
}

// DefaultSettings returns the settings used when no settings file
// exists in the share root.
func DefaultSettings() ShareSettings {
	return ShareSettings{
		ReadonlyDefault: true,
		Ignore:          []string{".git", SettingsFileName},
	}
}

// LoadSettings reads SettingsFileName from root. A missing file is
// not an error: defaults are returned.
func LoadSettings(root string) (ShareSettings, error) {
	raw, err := os.ReadFile(filepath.Join(root, SettingsFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return ShareSettings{}, fmt.Errorf("reading share settings: %w", err)
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(jsonc.ToJSON(raw), &settings); err != nil {
		return ShareSettings{}, fmt.Errorf("parsing share settings: %w", err)
	}
	return settings, nil
}
