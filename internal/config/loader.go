package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".pagediff"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .pagediff configuration file.
// Every field is optional; zero values leave the built-in default in place.
// Durations use Go syntax ("90s", "10m").
type File struct {
	OriginalDir  string `yaml:"originalDir,omitempty"`
	RoundtripDir string `yaml:"roundtripDir,omitempty"`
	WorkDir      string `yaml:"workDir,omitempty"`
	Report       string `yaml:"report,omitempty"`

	Threshold       float64  `yaml:"threshold,omitempty"`
	DPI             int      `yaml:"dpi,omitempty"`
	Workers         int      `yaml:"workers,omitempty"`
	MaxImageSide    int      `yaml:"maxImageSide,omitempty"`
	MaxDecodePixels int64    `yaml:"maxDecodePixels,omitempty"`
	Extensions      []string `yaml:"extensions,omitempty"`

	// Tools configures the external programs.
	Tools ToolsConfig `yaml:"tools,omitempty"`

	// History configures the run history database.
	History HistoryConfig `yaml:"history,omitempty"`
}

// ToolsConfig holds the external tool settings.
type ToolsConfig struct {
	Renderer      string        `yaml:"renderer,omitempty"`
	Converter     string        `yaml:"converter,omitempty"`
	ChunkSize     int           `yaml:"chunkSize,omitempty"`
	RenderTimeout time.Duration `yaml:"renderTimeout,omitempty"`
	ChunkTimeout  time.Duration `yaml:"chunkTimeout,omitempty"`
	FileTimeout   time.Duration `yaml:"fileTimeout,omitempty"`
}

// HistoryConfig holds the run history settings.
type HistoryConfig struct {
	// Disabled turns history off, like --no-history.
	Disabled bool `yaml:"disabled,omitempty"`

	// DBDir overrides the XDG data directory.
	DBDir string `yaml:"dbDir,omitempty"`
}

// LoadConfigFile loads a configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	return &cf, nil
}

// Apply copies every value set in the file onto c.
// Relative directories are resolved against baseDir, the directory holding
// the config file, so a checked-in .pagediff works from any cwd.
func (cf *File) Apply(c *Config, baseDir string) {
	setPath := func(dst *string, v string) {
		if v == "" {
			return
		}
		if !filepath.IsAbs(v) && baseDir != "" {
			v = filepath.Join(baseDir, v)
		}
		*dst = v
	}
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}

	setPath(&c.OriginalDir, cf.OriginalDir)
	setPath(&c.RoundtripDir, cf.RoundtripDir)
	setPath(&c.WorkDir, cf.WorkDir)
	setPath(&c.ReportPath, cf.Report)
	setPath(&c.DBDir, cf.History.DBDir)

	if cf.Threshold != 0 {
		c.Threshold = cf.Threshold
	}
	setInt(&c.DPI, cf.DPI)
	setInt(&c.Workers, cf.Workers)
	setInt(&c.MaxImageSide, cf.MaxImageSide)
	if cf.MaxDecodePixels != 0 {
		c.MaxDecodePixels = cf.MaxDecodePixels
	}
	if len(cf.Extensions) > 0 {
		c.Extensions = append([]string(nil), cf.Extensions...)
	}

	setString(&c.RendererCommand, cf.Tools.Renderer)
	setString(&c.ConverterCommand, cf.Tools.Converter)
	setInt(&c.ChunkSize, cf.Tools.ChunkSize)
	setDuration(&c.RenderTimeout, cf.Tools.RenderTimeout)
	setDuration(&c.ChunkTimeout, cf.Tools.ChunkTimeout)
	setDuration(&c.FileTimeout, cf.Tools.FileTimeout)

	if cf.History.Disabled {
		c.SaveToDB = false
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .pagediff in the current directory
// 3. Look for .pagediff in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}
