package preset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/patchgridgo/internal/ctxlog"
	"github.com/vk/patchgridgo/internal/fsutil"
)

// hclPresetFile mirrors the on-disk layout for decoding. A file may hold
// several preset blocks, though Save writes one per file.
type hclPresetFile struct {
	Presets []*hclPreset `hcl:"preset,block"`
}

type hclPreset struct {
	Name  string     `hcl:"name,label"`
	Rules []*hclRule `hcl:"connection,block"`
}

type hclRule struct {
	OutputNode string `hcl:"output_node"`
	OutputPort string `hcl:"output_port"`
	InputNode  string `hcl:"input_node"`
	InputPort  string `hcl:"input_port"`
}

// Store is the preset collaborator: it loads, persists and hands out
// presets, and tracks which one is active. It is owned by the session
// goroutine and not safe for concurrent use.
type Store struct {
	dir     string
	presets map[string]*Preset
	source  map[string]string
	active  string
}

// NewStore returns a store over the given presets directory. Call Load
// before use.
func NewStore(dir string) *Store {
	return &Store{
		dir:     dir,
		presets: make(map[string]*Preset),
		source:  make(map[string]string),
	}
}

// Dir returns the presets directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load re-reads every preset file in the directory, replacing the
// in-memory set. A missing directory yields an empty store. The active
// preset is kept if it still exists and deactivated otherwise.
func (s *Store) Load(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		logger.Debug("Presets directory does not exist, starting empty", "dir", s.dir)
		s.presets = make(map[string]*Preset)
		s.source = make(map[string]string)
		s.active = ""
		return nil
	}

	files, err := fsutil.FindFilesByExtension(s.dir, ".hcl")
	if err != nil {
		return fmt.Errorf("failed to scan presets directory %s: %w", s.dir, err)
	}

	presets := make(map[string]*Preset)
	source := make(map[string]string)
	parser := hclparse.NewParser()
	for _, file := range files {
		parsed, err := parsePresetFile(parser, file)
		if err != nil {
			return err
		}
		for _, p := range parsed {
			presets[p.Name] = p
			source[p.Name] = file
		}
	}

	s.presets = presets
	s.source = source
	if s.active != "" {
		if _, ok := s.presets[s.active]; !ok {
			logger.Debug("Active preset vanished on reload", "name", s.active)
			s.active = ""
		}
	}
	logger.Debug("Presets loaded", "count", len(s.presets), "dir", s.dir)
	return nil
}

func parsePresetFile(parser *hclparse.Parser, path string) ([]*Preset, error) {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse preset file %s: %w", path, diags)
	}

	var parsed hclPresetFile
	diags = gohcl.DecodeBody(hclFile.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode preset file %s: %w", path, diags)
	}

	presets := make([]*Preset, 0, len(parsed.Presets))
	for _, block := range parsed.Presets {
		p := &Preset{Name: block.Name}
		for _, r := range block.Rules {
			p.Rules = append(p.Rules, Rule{
				OutputNode: r.OutputNode,
				OutputPort: r.OutputPort,
				InputNode:  r.InputNode,
				InputPort:  r.InputPort,
			})
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// Get returns a preset by name.
func (s *Store) Get(name string) (*Preset, bool) {
	p, ok := s.presets[name]
	return p, ok
}

// Names returns all preset names, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save adds or replaces a preset and writes it to disk. A preset loaded
// from a shared file is rewritten into that file; new presets get a file
// of their own.
func (s *Store) Save(p *Preset) error {
	path, ok := s.source[p.Name]
	if !ok {
		path = filepath.Join(s.dir, fileNameFor(p.Name))
	}
	s.presets[p.Name] = p
	s.source[p.Name] = path
	return s.writeFile(path)
}

// Remove deletes a preset and its on-disk representation. If the
// preset's file holds other presets, the file is rewritten without it.
// The active preset is deactivated when removed.
func (s *Store) Remove(name string) error {
	path, ok := s.source[name]
	if !ok {
		return nil
	}
	delete(s.presets, name)
	delete(s.source, name)
	if s.active == name {
		s.active = ""
	}

	for _, src := range s.source {
		if src == path {
			return s.writeFile(path)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove preset file %s: %w", path, err)
	}
	return nil
}

// writeFile rewrites one preset file with every preset it currently owns.
func (s *Store) writeFile(path string) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for _, name := range s.Names() {
		if s.source[name] != path {
			continue
		}
		p := s.presets[name]
		block := body.AppendNewBlock("preset", []string{p.Name})
		pb := block.Body()
		for _, r := range p.Rules {
			cb := pb.AppendNewBlock("connection", nil).Body()
			cb.SetAttributeValue("output_node", cty.StringVal(r.OutputNode))
			cb.SetAttributeValue("output_port", cty.StringVal(r.OutputPort))
			cb.SetAttributeValue("input_node", cty.StringVal(r.InputNode))
			cb.SetAttributeValue("input_port", cty.StringVal(r.InputPort))
			pb.AppendNewline()
		}
		body.AppendNewline()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create presets directory: %w", err)
	}
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write preset file %s: %w", path, err)
	}
	return nil
}

// Activate marks a preset as the active one. It returns false when no
// preset of that name exists; the previous activation is kept.
func (s *Store) Activate(name string) bool {
	if _, ok := s.presets[name]; !ok {
		return false
	}
	s.active = name
	return true
}

// Deactivate clears the active preset.
func (s *Store) Deactivate() {
	s.active = ""
}

// ActiveName returns the active preset's name, or "" when none is active.
func (s *Store) ActiveName() string {
	return s.active
}

// ActiveRules returns the active preset's ordered rule list, or nil when
// no preset is active.
func (s *Store) ActiveRules() []Rule {
	p, ok := s.presets[s.active]
	if !ok {
		return nil
	}
	return p.Rules
}

// fileNameFor derives a file name from a preset name. Anything outside a
// conservative character set becomes a dash.
func fileNameFor(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
	return mapped + ".hcl"
}
