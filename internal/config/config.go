package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mgirard/svgrab/internal/bayer"
)

// CameraConfig describes the camera to acquire from.
// Type selects a concrete driver ("sim" or "v4l2").
type CameraConfig struct {
	Type       string  `yaml:"type"`        // "sim" | "v4l2"
	Device     string  `yaml:"device"`      // v4l2 device node, e.g. /dev/video0
	Name       string  `yaml:"name"`        // override reported camera name (sim)
	Width      int     `yaml:"width"`       // sensor width in pixels
	Height     int     `yaml:"height"`      // sensor height in pixels
	FrameRate  float64 `yaml:"framerate"`   // frames per second
	ExposureMs float64 `yaml:"exposure_ms"` // exposure time (ms)
	Depth      int     `yaml:"depth"`       // significant bits per sample (8-16)
}

// CFAConfig names the color filter array layout of the sensor.
type CFAConfig struct {
	Pattern string `yaml:"pattern"` // RGGB | BGGR | GRBG | GBRG
}

// OutputConfig controls where and how captures are written.
type OutputConfig struct {
	Dir         string `yaml:"dir"`          // output directory
	Basename    string `yaml:"basename"`     // file name without extension
	JPEGQuality int    `yaml:"jpeg_quality"` // 1-100
	ShiftBits   int    `yaml:"shift_bits"`   // right-shift for 8-bit reduction
	DNG         bool   `yaml:"dng"`          // also archive the raw frame as DNG
}

// StrobeConfig is optional: a GPIO flash/trigger line pulsed before fetch.
type StrobeConfig struct {
	Enabled  bool `yaml:"enabled"`
	Pin      int  `yaml:"pin"`      // BCM pin driving the strobe line
	PulseMs  int  `yaml:"pulse_ms"` // pulse width (ms)
	MockGPIO bool `yaml:"mock_gpio"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	CFA      CFAConfig      `yaml:"cfa"`
	Output   OutputConfig   `yaml:"output"`
	Strobe   StrobeConfig   `yaml:"strobe"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the validated configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Camera
	switch cfg.Camera.Type {
	case "sim", "v4l2":
	case "":
		return nil, fmt.Errorf("camera.type is required")
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 1296
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 966
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return nil, fmt.Errorf("camera dimensions must be positive, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.Width%2 != 0 || cfg.Camera.Height%2 != 0 {
		return nil, fmt.Errorf("camera dimensions must be even for a Bayer mosaic, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.FrameRate == 0 {
		cfg.Camera.FrameRate = 5
	}
	if cfg.Camera.FrameRate < 0 || cfg.Camera.FrameRate > 1000 {
		return nil, fmt.Errorf("framerate must be between 0 and 1000, got %g", cfg.Camera.FrameRate)
	}
	if cfg.Camera.ExposureMs == 0 {
		cfg.Camera.ExposureMs = 40
	}
	if cfg.Camera.ExposureMs < 0 || cfg.Camera.ExposureMs > 10000 {
		return nil, fmt.Errorf("exposure_ms must be between 0 and 10000, got %g", cfg.Camera.ExposureMs)
	}
	if cfg.Camera.Depth == 0 {
		cfg.Camera.Depth = 12
	}
	if cfg.Camera.Depth < 8 || cfg.Camera.Depth > 16 {
		return nil, fmt.Errorf("depth must be between 8 and 16, got %d", cfg.Camera.Depth)
	}

	// CFA
	if cfg.CFA.Pattern == "" {
		cfg.CFA.Pattern = "GRBG"
	}
	if _, err := bayer.Parse(cfg.CFA.Pattern); err != nil {
		return nil, err
	}

	// Output
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "captures"
	}
	if cfg.Output.Basename == "" {
		cfg.Output.Basename = "capture"
	}
	if cfg.Output.JPEGQuality == 0 {
		cfg.Output.JPEGQuality = 95
	}
	if cfg.Output.JPEGQuality < 1 || cfg.Output.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", cfg.Output.JPEGQuality)
	}
	if cfg.Output.ShiftBits == 0 {
		cfg.Output.ShiftBits = 8
	}
	if cfg.Output.ShiftBits < 0 || cfg.Output.ShiftBits > 15 {
		return nil, fmt.Errorf("shift_bits must be between 0 and 15, got %d", cfg.Output.ShiftBits)
	}

	// Strobe
	if cfg.Strobe.Enabled {
		if cfg.Strobe.Pin <= 0 {
			return nil, fmt.Errorf("strobe.pin is required when the strobe is enabled")
		}
		if cfg.Strobe.PulseMs <= 0 {
			cfg.Strobe.PulseMs = 10
		}
	}

	return &cfg, nil
}

// ValidateConfigPath checks that a user-supplied config path points at a
// .yaml file inside a configs/ directory, rejecting traversal attempts.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("config path must not contain '..': %s", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory: %s", path)
	}
	return nil
}

// Pattern returns the parsed CFA pattern. Load guarantees it parses.
func (c *Config) Pattern() bayer.Pattern {
	p, _ := bayer.Parse(c.CFA.Pattern)
	return p
}

// Exposure returns the exposure time as a duration.
func (c *Config) Exposure() time.Duration {
	return time.Duration(c.Camera.ExposureMs * float64(time.Millisecond))
}

// StrobePulse returns the strobe pulse width as a duration.
func (c *Config) StrobePulse() time.Duration {
	return time.Duration(c.Strobe.PulseMs) * time.Millisecond
}

// PNGPath returns the full-depth PNG output path.
func (c *Config) PNGPath() string {
	return filepath.Join(c.Output.Dir, c.Output.Basename+".png")
}

// JPEGPath returns the 8-bit JPEG output path.
func (c *Config) JPEGPath() string {
	return filepath.Join(c.Output.Dir, c.Output.Basename+".jpg")
}

// DNGPath returns the raw archive output path.
func (c *Config) DNGPath() string {
	return filepath.Join(c.Output.Dir, c.Output.Basename+".dng")
}
