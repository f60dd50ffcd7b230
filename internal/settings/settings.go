// Package settings loads the search-scheduler and disk-accounting
// collaborator config described in spec.md §6 ("Settings (collaborator)"),
// grounded in the pack's yaml.v3-backed config idiom.
package settings

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// targetDrivePlaceholder is the literal token spec.md §6 names:
// "TEMP_DOWNLOAD_DIRECTORY (string, may contain the literal token
// %[targetdrive])".
const targetDrivePlaceholder = "%[targetdrive]"

// Config is the on-disk settings document.
type Config struct {
	SearchTimeMinutes     int    `yaml:"search_time_minutes"`
	TempDownloadDirectory string `yaml:"temp_download_directory"`
}

// Default returns a Config with SEARCH_TIME at its floor of 1 minute and no
// temp directory configured.
func Default() *Config {
	return &Config{SearchTimeMinutes: 1}
}

// Load reads and validates a YAML settings file. SearchTimeMinutes is
// clamped to a floor of 1 if it is below 1 (spec.md §6: "SEARCH_TIME
// (minutes, >= 1)").
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.SearchTimeMinutes < 1 {
		c.SearchTimeMinutes = 1
	}
}

// HasTargetDrivePlaceholder tests for the literal %[targetdrive] token
// used by registry.GetDiskInfo (spec.md §4.1 "get_disk_info").
func (c *Config) HasTargetDrivePlaceholder() bool {
	return strings.Contains(c.TempDownloadDirectory, targetDrivePlaceholder)
}

// SchedulerSource adapts a Config to scheduler.SearchTimeSource; Config's
// own field is named the same as the interface method it must satisfy, so
// the adapter carries the method instead of the struct itself.
type SchedulerSource struct {
	Config *Config
}

func (s SchedulerSource) SearchTimeMinutes() int {
	return s.Config.SearchTimeMinutes
}
