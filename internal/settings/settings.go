// Package settings persists the small set of application preferences that
// survive restarts. The file is HCL:
//
//	auto_connect  = true
//	active_preset = "studio"
//	start_hidden  = false
//
// The core never reads settings directly; the app layer consults them at
// startup and writes them back when the active preset changes.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Settings are the persisted preferences.
type Settings struct {
	// AutoConnect enables preset evaluation on graph changes.
	AutoConnect bool `hcl:"auto_connect,optional"`

	// ActivePreset is the preset activated at startup, if it exists.
	ActivePreset string `hcl:"active_preset,optional"`

	// StartHidden asks the surrounding application to start without a
	// visible surface. Ignored by the core.
	StartHidden bool `hcl:"start_hidden,optional"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{AutoConnect: true}
}

// Load reads the settings file. A missing file yields defaults; a
// malformed one is an error rather than silently ignored.
func Load(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, diags)
	}

	s := Default()
	diags = gohcl.DecodeBody(hclFile.Body, nil, s)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode settings file %s: %w", path, diags)
	}
	return s, nil
}

// Save writes the settings file, creating parent directories as needed.
func Save(path string, s *Settings) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("auto_connect", cty.BoolVal(s.AutoConnect))
	body.SetAttributeValue("active_preset", cty.StringVal(s.ActivePreset))
	body.SetAttributeValue("start_hidden", cty.BoolVal(s.StartHidden))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", path, err)
	}
	return nil
}
