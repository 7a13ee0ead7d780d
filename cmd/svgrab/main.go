package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/mgirard/svgrab/internal/config"
	"github.com/mgirard/svgrab/internal/debug"
	"github.com/mgirard/svgrab/internal/hw/device"
	"github.com/mgirard/svgrab/internal/hw/gpio"
	"github.com/mgirard/svgrab/internal/hw/strobe"
	"github.com/mgirard/svgrab/internal/logic/pipeline"
	"github.com/mgirard/svgrab/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	exposureMs := flag.Float64("exposure_ms", 0, "override exposure time in ms (0 = use config)")
	frameRate := flag.Float64("framerate", 0, "override frame rate in fps (0 = use config)")
	shiftBits := flag.Int("shift", -1, "override right-shift bits for the 8-bit output (-1 = use config)")
	forceDNG := flag.Bool("dng", false, "also archive the raw frame as DNG")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(*exposureMs, *frameRate, *shiftBits); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Apply CLI overrides to config
	applyOverrides(cfg, web.Overrides{
		ExposureMs: *exposureMs,
		FrameRate:  *frameRate,
		ShiftBits:  *shiftBits,
	})
	if *forceDNG {
		cfg.Output.DNG = true
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Enumerate devices. The count is informational; opening decides.
	debug.Step(1, "Enumerating cameras")
	count, err := countCameras(cfg)
	if err != nil {
		log.Fatalf("enumerate cameras failed: %v", err)
	}
	debug.Cameras(count)
	if count == 0 {
		log.Fatalf("init camera failed: %v", device.ErrNoDevice)
	}

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer func() {
		if err := cam.Close(); err != nil {
			log.Printf("closing camera failed: %v", err)
		}
	}()
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Camera name", cam.Name())
	debug.Value("CFA pattern", cfg.CFA.Pattern)

	// Initialize optional strobe line
	var trigger pipeline.Trigger
	if cfg.Strobe.Enabled {
		debug.Step(3, "Initializing strobe")
		debug.Value("Mock GPIO", cfg.Strobe.MockGPIO)
		gpioDriver, err := gpio.NewDriver(cfg.Strobe.MockGPIO)
		if err != nil {
			log.Fatalf("init GPIO failed: %v", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
		trigger, err = strobe.New(gpioDriver, cfg.Strobe.Pin, cfg.StrobePulse())
		if err != nil {
			log.Fatalf("init strobe failed: %v", err)
		}
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		log.Fatalf("create output dir failed: %v", err)
	}

	// Build runCapture closure over hardware and base config
	runCapture := func(ctx context.Context, overrides web.Overrides) error {
		return executeCapture(ctx, cfg, cam, trigger, overrides)
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		formDefaults := web.FormConfig{
			ExposureMs: cfg.Camera.ExposureMs,
			FrameRate:  cfg.Camera.FrameRate,
			ShiftBits:  cfg.Output.ShiftBits,
		}
		last := web.LastFiles{PNG: cfg.PNGPath(), JPEG: cfg.JPEGPath()}
		srv := web.NewServer(webAddr, broadcaster, runCapture, formDefaults, last)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	{
		// Run capture once with current config (already has CLI overrides applied)
		if err := runCapture(ctx, web.Overrides{ShiftBits: -1}); err != nil {
			log.Fatalf("capture failed: %v", err)
		}
	}
}

// executeCapture runs one capture with the given config and overrides.
// It applies overrides to a copy of the config, then runs the pipeline.
func executeCapture(
	ctx context.Context,
	baseCfg *config.Config,
	cam device.Camera,
	trigger pipeline.Trigger,
	overrides web.Overrides,
) error {
	cfg := applyOverridesToCopy(baseCfg, overrides)

	params := pipeline.Params{
		Settings: device.Settings{
			FrameRate: cfg.Camera.FrameRate,
			Exposure:  cfg.Exposure(),
		},
		Pattern:     cfg.Pattern(),
		ShiftBits:   uint(cfg.Output.ShiftBits),
		JPEGQuality: cfg.Output.JPEGQuality,
		PNGPath:     cfg.PNGPath(),
		JPEGPath:    cfg.JPEGPath(),
	}
	if cfg.Output.DNG {
		params.DNGPath = cfg.DNGPath()
	}

	pipe := pipeline.New(cam, trigger)
	result, err := pipe.Run(ctx, params)
	if err != nil {
		return err
	}

	debug.Summary("Capture Summary")
	debug.Value("Frame sequence", result.Meta.Sequence)
	debug.Value("Timestamp", result.Meta.Timestamp)
	for _, f := range result.Files {
		debug.Value("Written", f)
	}
	return nil
}

// validateCLIOverrides checks that overrides are within valid ranges.
// Zero exposure/framerate and shift -1 are ignored ("use config default").
func validateCLIOverrides(exposureMs, frameRate float64, shiftBits int) error {
	if exposureMs != 0 {
		if math.IsNaN(exposureMs) || math.IsInf(exposureMs, 0) || exposureMs <= 0 || exposureMs > 10000 {
			return fmt.Errorf("exposure_ms must be between 0 and 10000, got %g", exposureMs)
		}
	}
	if frameRate != 0 {
		if math.IsNaN(frameRate) || math.IsInf(frameRate, 0) || frameRate <= 0 || frameRate > 1000 {
			return fmt.Errorf("framerate must be between 0 and 1000, got %g", frameRate)
		}
	}
	if shiftBits != -1 {
		if shiftBits < 0 || shiftBits > 15 {
			return fmt.Errorf("shift must be between 0 and 15, got %d", shiftBits)
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Zero exposure/framerate and
// negative shift values are ignored.
func applyOverrides(cfg *config.Config, overrides web.Overrides) {
	if overrides.ExposureMs > 0 {
		cfg.Camera.ExposureMs = overrides.ExposureMs
	}
	if overrides.FrameRate > 0 {
		cfg.Camera.FrameRate = overrides.FrameRate
	}
	if overrides.ShiftBits >= 0 {
		cfg.Output.ShiftBits = overrides.ShiftBits
	}
}

// applyOverridesToCopy returns a new config with overrides applied.
// Zero exposure/framerate and negative shift mean "use base config".
func applyOverridesToCopy(baseCfg *config.Config, overrides web.Overrides) *config.Config {
	cfg := *baseCfg
	if overrides.ExposureMs > 0 {
		cfg.Camera.ExposureMs = overrides.ExposureMs
	}
	if overrides.FrameRate > 0 {
		cfg.Camera.FrameRate = overrides.FrameRate
	}
	if overrides.ShiftBits >= 0 {
		cfg.Output.ShiftBits = overrides.ShiftBits
	}
	return &cfg
}

// countCameras reports how many devices the configured driver can see.
func countCameras(cfg *config.Config) (int, error) {
	switch cfg.Camera.Type {
	case "sim":
		return 1, nil
	case "v4l2":
		return device.CountVideoDevices("/dev/video*")
	default:
		return 0, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config) (device.Camera, error) {
	switch cfg.Camera.Type {
	case "sim":
		return device.NewSim(device.SimConfig{
			Name:    cfg.Camera.Name,
			Width:   cfg.Camera.Width,
			Height:  cfg.Camera.Height,
			Depth:   cfg.Camera.Depth,
			Pattern: cfg.Pattern(),
		})
	case "v4l2":
		return device.NewV4L2(device.V4L2Config{
			Path:    cfg.Camera.Device,
			Width:   cfg.Camera.Width,
			Height:  cfg.Camera.Height,
			Pattern: cfg.Pattern(),
		})
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
