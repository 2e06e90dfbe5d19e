// Package config loads the YAML file every command points at with -c.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bizzlechizzle/aupat-sub000/layout"
)

// Rule maps a make/model substring to a hardware category.
type Rule struct {
	Match    string `yaml:"match"`
	Category string `yaml:"category"`
}

type Probe struct {
	Exiftool   string `yaml:"exiftool"`
	Ffprobe    string `yaml:"ffprobe"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type Config struct {
	CatalogPath string `yaml:"catalog_path"`
	StagingRoot string `yaml:"staging_root"`
	ArchiveRoot string `yaml:"archive_root"`
	Probe       Probe  `yaml:"probe"`
	Hardware    []Rule `yaml:"hardware_rules"`
}

// Default returns a config rooted at workDir with the built-in rule table.
func Default(workDir string) *Config {
	return &Config{
		CatalogPath: filepath.Join(workDir, "aupat", "catalog.sqlite3"),
		StagingRoot: filepath.Join(workDir, "staging"),
		ArchiveRoot: filepath.Join(workDir, "archive"),
		Probe: Probe{
			Exiftool:   "exiftool",
			Ffprobe:    "ffprobe",
			TimeoutSec: 30,
		},
		Hardware: DefaultRules(),
	}
}

// DefaultRules is the built-in make/model rule table; a config file's
// hardware_rules section replaces it wholesale.
func DefaultRules() []Rule {
	return []Rule{
		{Match: "gopro", Category: string(layout.HardwareAction)},
		{Match: "insta360", Category: string(layout.HardwareAction)},
		{Match: "dji", Category: string(layout.HardwareDrone)},
		{Match: "parrot", Category: string(layout.HardwareDrone)},
		{Match: "autel", Category: string(layout.HardwareDrone)},
		{Match: "garmin", Category: string(layout.HardwareDashCam)},
		{Match: "blackvue", Category: string(layout.HardwareDashCam)},
		{Match: "viofo", Category: string(layout.HardwareDashCam)},
		{Match: "apple", Category: string(layout.HardwarePhone)},
		{Match: "iphone", Category: string(layout.HardwarePhone)},
		{Match: "samsung", Category: string(layout.HardwarePhone)},
		{Match: "google", Category: string(layout.HardwarePhone)},
		{Match: "pixel", Category: string(layout.HardwarePhone)},
		{Match: "oneplus", Category: string(layout.HardwarePhone)},
		{Match: "motorola", Category: string(layout.HardwarePhone)},
		{Match: "kodak", Category: string(layout.HardwareFilm)},
		{Match: "polaroid", Category: string(layout.HardwareFilm)},
		{Match: "holga", Category: string(layout.HardwareFilm)},
		{Match: "canon", Category: string(layout.HardwareCamera)},
		{Match: "nikon", Category: string(layout.HardwareCamera)},
		{Match: "sony", Category: string(layout.HardwareCamera)},
		{Match: "fujifilm", Category: string(layout.HardwareCamera)},
		{Match: "olympus", Category: string(layout.HardwareCamera)},
		{Match: "panasonic", Category: string(layout.HardwareCamera)},
		{Match: "leica", Category: string(layout.HardwareCamera)},
		{Match: "pentax", Category: string(layout.HardwareCamera)},
		{Match: "ricoh", Category: string(layout.HardwareCamera)},
		{Match: "hasselblad", Category: string(layout.HardwareCamera)},
	}
}

// Load reads path and overlays it on Default. An empty path returns the
// defaults unchanged.
func Load(path, workDir string) (*Config, error) {
	c := Default(workDir)
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file read error: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("config file parse error: %w", err)
	}
	if len(c.Hardware) == 0 {
		c.Hardware = DefaultRules()
	}
	if c.Probe.TimeoutSec <= 0 {
		c.Probe.TimeoutSec = 30
	}
	return c, nil
}

// ProbeTimeout is the per-invocation bound on external probe commands.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSec) * time.Second
}
