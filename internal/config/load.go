package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable consulted when -config is unset.
const EnvConfig = "SB6GO_CONFIG"

// Load builds the configuration from defaults, then the config file, then
// flags, and validates the result.
//
// Relative paths read from a config file are resolved against the directory
// holding that file. Defaults and flag values stay relative to the working
// directory.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if configPath == "" {
		configPath = os.Getenv(EnvConfig)
	}
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing file among the working
// directory's sb6go.yaml and ConfigDir()/config.yaml.
func findConfigFile() string {
	for _, path := range []string{
		"./sb6go.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	} {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// ConfigDir returns the per-user sb6go config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "sb6go")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "sb6go")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "sb6go")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "sb6go")
	}
}

// filePaths captures the path-valued keys a config file actually sets.
type filePaths struct {
	Assets struct {
		SearchPaths []string `yaml:"search_paths"`
	} `yaml:"assets"`
	Viewer struct {
		ShaderDir     string `yaml:"shader_dir"`
		ScreenshotDir string `yaml:"screenshot_dir"`
	} `yaml:"viewer"`
	Logging struct {
		LogFile string `yaml:"log_file"`
	} `yaml:"logging"`
}

// loadFromFile merges the YAML file at path into cfg and rebases the
// path-valued keys it sets onto the file's directory.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}

	var set filePaths
	if err := yaml.Unmarshal(data, &set); err != nil {
		return err
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}

	if set.Assets.SearchPaths != nil {
		paths := make([]string, len(set.Assets.SearchPaths))
		for i, p := range set.Assets.SearchPaths {
			paths[i] = resolvePath(base, p)
		}
		cfg.Assets.SearchPaths = paths
	}
	if set.Viewer.ShaderDir != "" {
		cfg.Viewer.ShaderDir = resolvePath(base, set.Viewer.ShaderDir)
	}
	if set.Viewer.ScreenshotDir != "" {
		cfg.Viewer.ScreenshotDir = resolvePath(base, set.Viewer.ScreenshotDir)
	}
	if set.Logging.LogFile != "" {
		cfg.Logging.LogFile = resolvePath(base, set.Logging.LogFile)
	}
	return nil
}

// resolvePath expands a leading "~/" to the home directory and joins other
// relative paths onto base.
func resolvePath(base, p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
