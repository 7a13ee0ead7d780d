// Package pipeline runs the single-shot capture sequence: configure the
// camera, fetch exactly one raw frame, optionally archive it as DNG, then
// demosaic and persist PNG and JPEG renditions.
package pipeline

import (
	"context"
	"fmt"

	"github.com/mgirard/svgrab/internal/bayer"
	"github.com/mgirard/svgrab/internal/debug"
	"github.com/mgirard/svgrab/internal/dng"
	"github.com/mgirard/svgrab/internal/frame"
	"github.com/mgirard/svgrab/internal/hw/device"
	"github.com/mgirard/svgrab/internal/output"
)

// Trigger fires an external strobe/flash line. Optional.
type Trigger interface {
	Fire() error
}

// Pipeline owns the hardware for the duration of one capture run.
type Pipeline struct {
	cam     device.Camera
	trigger Trigger // nil = no strobe
}

// New creates a pipeline. trigger may be nil.
func New(cam device.Camera, trigger Trigger) *Pipeline {
	return &Pipeline{
		cam:     cam,
		trigger: trigger,
	}
}

// Params defines one capture run.
type Params struct {
	Settings device.Settings
	Pattern  bayer.Pattern

	ShiftBits   uint // right-shift for the 8-bit reduction
	JPEGQuality int

	PNGPath  string
	JPEGPath string
	DNGPath  string // "" = skip raw archival
}

// Result reports what one run produced.
type Result struct {
	Meta  frame.Meta
	Files []string
}

// Run executes the pipeline once, top to bottom. Continuous capture is
// disabled on every exit path, including a failed fetch: the release is
// deferred before the first blocking call.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Result, error) {
	if !params.Pattern.Valid() {
		return nil, fmt.Errorf("invalid CFA pattern %v", params.Pattern)
	}
	if params.ShiftBits > 15 {
		return nil, fmt.Errorf("shift bits must be 0-15, got %d", params.ShiftBits)
	}
	if params.PNGPath == "" || params.JPEGPath == "" {
		return nil, fmt.Errorf("png and jpeg output paths are required")
	}

	debug.Section("Capture")

	debug.Step(1, "Configuring camera")
	if err := p.cam.Configure(params.Settings); err != nil {
		return nil, fmt.Errorf("configure camera: %w", err)
	}

	debug.Step(2, "Enabling continuous capture")
	if err := p.cam.EnableCapture(); err != nil {
		return nil, fmt.Errorf("enable capture: %w", err)
	}
	defer func() {
		// Safety net: DisableCapture is idempotent, so this is a no-op on
		// the success path where capture was already disabled after fetch.
		if err := p.cam.DisableCapture(); err != nil {
			debug.Error(fmt.Errorf("disable capture: %w", err))
		}
	}()

	if p.trigger != nil {
		debug.Step(3, "Firing strobe")
		if err := p.trigger.Fire(); err != nil {
			return nil, fmt.Errorf("fire strobe: %w", err)
		}
	}

	debug.Step(4, "Fetching frame")
	raw, meta, err := p.cam.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch frame: %w", err)
	}

	debug.Step(5, "Disabling continuous capture")
	if err := p.cam.DisableCapture(); err != nil {
		return nil, fmt.Errorf("disable capture: %w", err)
	}

	result := &Result{Meta: meta}

	if params.DNGPath != "" {
		debug.Step(6, "Archiving raw frame")
		opts := dng.Options{
			CameraName: p.cam.Name(),
			Pattern:    params.Pattern,
			Software:   "svgrab",
		}
		if err := dng.Write(params.DNGPath, raw, opts); err != nil {
			return nil, err
		}
		debug.Saved("dng", params.DNGPath)
		result.Files = append(result.Files, params.DNGPath)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	debug.Step(7, "Demosaicing")
	rgb, err := bayer.Demosaic(raw, params.Pattern)
	if err != nil {
		return nil, err
	}

	debug.Step(8, "Saving full-depth PNG")
	if err := output.SavePNG(params.PNGPath, rgb.Image()); err != nil {
		return nil, err
	}
	debug.Saved("png", params.PNGPath)
	result.Files = append(result.Files, params.PNGPath)

	debug.Step(9, "Reducing to 8-bit and saving JPEG")
	rgb8 := rgb.Shift(params.ShiftBits)
	if err := output.SaveJPEG(params.JPEGPath, rgb8.Image(), params.JPEGQuality); err != nil {
		return nil, err
	}
	debug.Saved("jpeg", params.JPEGPath)
	result.Files = append(result.Files, params.JPEGPath)

	debug.Section("Capture Complete")
	return result, nil
}
