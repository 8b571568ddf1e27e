package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // minimal images ship without a zoneinfo database

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "UTC"
	defaultIconsDir       = "assets/guild_icons"
	defaultIcon           = "DEFAULT.gif"
	defaultSchedule       = "0 0 * * *"
	defaultCacheDir       = "./var/ics-cache"
	defaultResolveTimeout = 10 * time.Second
	defaultConcurrency    = 4
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the status API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that decides when "today" starts.
	Timezone string `yaml:"timezone" json:"timezone"`

	// IconsDir holds the date-coded asset files.
	IconsDir string `yaml:"icons_dir" json:"icons_dir"`

	// DefaultIcon is the file (inside IconsDir) used when no event is active.
	DefaultIcon string `yaml:"default_icon" json:"default_icon"`

	// IgnoredFiles are names inside IconsDir that are not assets.
	IgnoredFiles []string `yaml:"ignored_files" json:"ignored_files"`

	// SpecialCasesDir holds <ID>.yaml special-case definitions. Defaults to
	// IconsDir/special_cases.
	SpecialCasesDir string `yaml:"special_cases_dir" json:"special_cases_dir"`

	// CacheDir stores downloaded iCalendar feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Schedule is a standard 5-field cron spec for the icon refresh.
	Schedule string `yaml:"schedule" json:"schedule"`

	// ResolveTimeout bounds each special-case resolution.
	ResolveTimeout time.Duration `yaml:"resolve_timeout" json:"resolve_timeout"`

	// MaxConcurrency bounds parallel special-case resolutions.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// OutputPath, if set, receives a copy of the active icon on every change.
	OutputPath string `yaml:"output_path,omitempty" json:"output_path,omitempty"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing values so partial files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.IconsDir == "" {
		c.IconsDir = defaultIconsDir
	}
	if c.DefaultIcon == "" {
		c.DefaultIcon = defaultIcon
	}
	if c.IgnoredFiles == nil {
		c.IgnoredFiles = []string{defaultIcon, "README.md"}
	}
	if c.SpecialCasesDir == "" {
		c.SpecialCasesDir = filepath.Join(c.IconsDir, "special_cases")
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Schedule == "" {
		c.Schedule = defaultSchedule
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = defaultResolveTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultConcurrency
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("config: schedule %q: %w", c.Schedule, err)
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultIconPath is the full path of the fallback icon.
func (c *Config) DefaultIconPath() string {
	return filepath.Join(c.IconsDir, c.DefaultIcon)
}

// Load loads configuration from the given YAML path.
//
// A missing file is created with defaults (0600) and the defaults are
// returned. An existing file is decoded, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".iconcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
