// Package config handles viewer configuration loading and management.
package config

import "fmt"

// Config holds all viewer settings.
type Config struct {
	Window  WindowConfig  `yaml:"window"`
	Assets  AssetsConfig  `yaml:"assets"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Logging LoggingConfig `yaml:"logging"`
}

// WindowConfig holds window and GL context settings.
type WindowConfig struct {
	Title      string `yaml:"title"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Fullscreen bool   `yaml:"fullscreen"`
	VSync      bool   `yaml:"vsync"`
	GLMajor    int    `yaml:"gl_major"`
	GLMinor    int    `yaml:"gl_minor"`
}

// AssetsConfig holds asset lookup settings.
type AssetsConfig struct {
	SearchPaths []string `yaml:"search_paths"` // Later entries take priority
	Cache       bool     `yaml:"cache"`
}

// ViewerConfig holds preview settings.
type ViewerConfig struct {
	Wireframe  bool       `yaml:"wireframe"`
	Instances  int        `yaml:"instances"`
	ClearColor [4]float32 `yaml:"clear_color"`
	SpinSpeed  float32    `yaml:"spin_speed"` // radians per second
	ShaderDir  string     `yaml:"shader_dir"` // overrides the built-in shaders when set

	ScreenshotDir    string `yaml:"screenshot_dir"`
	ScreenshotFormat string `yaml:"screenshot_format"` // ktx, png or bmp
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:      "sb6view",
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			GLMajor:    4,
			GLMinor:    1,
		},
		Assets: AssetsConfig{
			SearchPaths: []string{".", "media"},
			Cache:       true,
		},
		Viewer: ViewerConfig{
			Wireframe:  false,
			Instances:  1,
			ClearColor: [4]float32{0.1, 0.1, 0.15, 1.0},
			SpinSpeed:  0.5,

			ScreenshotDir:    "screenshots",
			ScreenshotFormat: "ktx",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks that settings are usable.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Window.GLMajor < 3 || (c.Window.GLMajor == 3 && c.Window.GLMinor < 3) {
		return fmt.Errorf("GL %d.%d is below the 3.3 core profile minimum", c.Window.GLMajor, c.Window.GLMinor)
	}
	if c.Viewer.Instances < 1 {
		return fmt.Errorf("instances must be at least 1, got %d", c.Viewer.Instances)
	}
	switch c.Viewer.ScreenshotFormat {
	case "ktx", "png", "bmp":
	default:
		return fmt.Errorf("unsupported screenshot format %q", c.Viewer.ScreenshotFormat)
	}
	return nil
}
