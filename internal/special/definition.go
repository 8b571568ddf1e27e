package special

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"iconcal/internal/asset"
	appLog "iconcal/internal/log"
)

// Kind selects how a definition computes its anchor date.
type Kind string

const (
	KindEaster Kind = "easter"
	KindRRule  Kind = "rrule"
	KindICS    Kind = "ics"
)

// Definition is the on-disk schema of <special_cases_dir>/<ID>.yaml:
//
//	id: TG
//	name: Thanksgiving
//	kind: rrule
//	rrule: FREQ=YEARLY;BYMONTH=11;BYDAY=+4TH
//	duration_days: 4
type Definition struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name,omitempty"`
	Kind         Kind   `yaml:"kind"`
	OffsetStart  int    `yaml:"offset_start,omitempty"`
	OffsetEnd    int    `yaml:"offset_end,omitempty"`
	DurationDays int    `yaml:"duration_days,omitempty"`
	RRule        string `yaml:"rrule,omitempty"`
	URL          string `yaml:"url,omitempty"`
	Summary      string `yaml:"summary,omitempty"`
}

// DefinitionFile pairs a definition with the file it came from.
type DefinitionFile struct {
	Definition Definition
	Path       string
}

func (d Definition) normalized() Definition {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	d.Kind = Kind(strings.ToLower(strings.TrimSpace(string(d.Kind))))
	d.RRule = strings.TrimSpace(d.RRule)
	d.URL = strings.TrimSpace(d.URL)
	d.Summary = strings.TrimSpace(d.Summary)
	return d
}

// Validate checks the fields required by the definition's kind.
func (d Definition) Validate() error {
	if !ValidID(d.ID) {
		return fmt.Errorf("%w: id %q: %w", ErrInvalidDefinition, d.ID, ErrInvalidID)
	}
	if d.DurationDays < 0 {
		return fmt.Errorf("%w: %s: duration_days must not be negative", ErrInvalidDefinition, d.ID)
	}
	switch d.Kind {
	case KindEaster:
	case KindRRule:
		if d.RRule == "" {
			return fmt.Errorf("%w: %s: rrule is required", ErrInvalidDefinition, d.ID)
		}
		if _, err := rrule.StrToRRule(d.RRule); err != nil {
			return fmt.Errorf("%w: %s: rrule: %w", ErrInvalidDefinition, d.ID, err)
		}
	case KindICS:
		if d.URL == "" || d.Summary == "" {
			return fmt.Errorf("%w: %s: url and summary are required", ErrInvalidDefinition, d.ID)
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidDefinition, d.ID, d.Kind)
	}
	return nil
}

func (d Definition) window() Window {
	return Window{StartOffset: d.OffsetStart, EndOffset: d.OffsetEnd, Days: d.DurationDays}
}

// ParseDefinitionYAML decodes and validates one definition.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("%w: empty payload", ErrInvalidDefinition)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: decode: %w", ErrInvalidDefinition, err)
	}
	def = def.normalized()
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDir reads every *.yaml / *.yml file in dir. A file's stem must equal
// the id it declares, so EA.yaml defines EA. A missing dir means no
// definitions.
func LoadDir(dir string) ([]DefinitionFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("special: read %s: %w", dir, err)
	}

	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("special: read %s: %w", path, err)
		}
		def, err := ParseDefinitionYAML(data)
		if err != nil {
			return nil, fmt.Errorf("special: %s: %w", path, err)
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if stem != def.ID {
			return nil, fmt.Errorf("special: %s: %w: file name must match id %q", path, ErrInvalidDefinition, def.ID)
		}
		defs = append(defs, DefinitionFile{Definition: def, Path: filepath.Clean(path)})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

// Deps carries what definition-backed resolvers need at runtime.
type Deps struct {
	Fetcher FeedFetcher
}

// NewResolver builds the resolver for a validated definition.
func NewResolver(def Definition, deps Deps) (asset.SpecialCaseResolver, error) {
	switch def.Kind {
	case KindEaster:
		return EasterResolver{Window: def.window()}, nil
	case KindRRule:
		return RRuleResolver{Rule: def.RRule, Window: def.window()}, nil
	case KindICS:
		if deps.Fetcher == nil {
			return nil, fmt.Errorf("special: %s: ics definitions need a feed fetcher", def.ID)
		}
		return ICSResolver{
			ID:      def.ID,
			URL:     def.URL,
			Summary: def.Summary,
			Window:  def.window(),
			Fetcher: deps.Fetcher,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidDefinition, def.ID, def.Kind)
	}
}

// Builtins are compiled-in definitions, used unless a file overrides them.
func Builtins() []Definition {
	return []Definition{
		// Thursday before Easter through Easter Monday.
		{ID: "EA", Name: "Easter", Kind: KindEaster, OffsetStart: -3, OffsetEnd: 1},
	}
}

// Discover builds the startup registry: definitions found in dir first,
// then built-ins whose id no file claimed.
func Discover(dir string, deps Deps) (*Registry, error) {
	files, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	for _, file := range files {
		res, err := NewResolver(file.Definition, deps)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(file.Definition.ID, file.Path, res); err != nil {
			return nil, err
		}
		appLog.Debug("special case registered", "id", file.Definition.ID, "kind", file.Definition.Kind, "origin", file.Path)
	}

	for _, def := range Builtins() {
		if _, taken := reg.Lookup(def.ID); taken {
			continue
		}
		res, err := NewResolver(def, deps)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(def.ID, "builtin", res); err != nil {
			return nil, err
		}
		appLog.Debug("special case registered", "id", def.ID, "kind", def.Kind, "origin", "builtin")
	}

	appLog.Info("special cases ready", "count", len(reg.IDs()), "dir", dir)
	return reg, nil
}
