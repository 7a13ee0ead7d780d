package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/blackjack/webcam"

	"github.com/mgirard/svgrab/internal/bayer"
	"github.com/mgirard/svgrab/internal/debug"
	"github.com/mgirard/svgrab/internal/frame"
)

// V4L2 exposure controls (linux/v4l2-controls.h). ExposureAbsolute is in
// units of 100 microseconds.
const (
	ctrlExposureAuto     webcam.ControlID = 0x009a0901
	ctrlExposureAbsolute webcam.ControlID = 0x009a0902

	exposureManual = 1
)

// bayerFormats maps each CFA pattern to candidate V4L2 fourccs, highest bit
// depth first. The fourcc fixes both the pattern and the sample layout.
var bayerFormats = map[bayer.Pattern][]struct {
	fourcc string
	depth  int
}{
	bayer.RGGB: {{"RG16", 16}, {"RG12", 12}, {"RGGB", 8}},
	bayer.GRBG: {{"GR16", 16}, {"BA12", 12}, {"GRBG", 8}},
	bayer.GBRG: {{"GB16", 16}, {"GB12", 12}, {"GBRG", 8}},
	bayer.BGGR: {{"BYR2", 16}, {"BG12", 12}, {"BA81", 8}},
}

// V4L2Config describes how to open the real camera.
type V4L2Config struct {
	Path    string // device node, e.g. /dev/video0
	Width   int
	Height  int
	Pattern bayer.Pattern
}

// V4L2 drives a real camera through the kernel video capture interface.
// It negotiates a Bayer pixel format matching the configured CFA pattern
// so the pipeline receives the unprocessed mosaic.
type V4L2 struct {
	cam    *webcam.Webcam
	cfg    V4L2Config
	name   string
	depth  int
	width  int
	height int

	settings  Settings
	streaming bool
	seq       uint64
}

// NewV4L2 opens and prepares the device node.
func NewV4L2(cfg V4L2Config) (*V4L2, error) {
	if cfg.Path == "" {
		cfg.Path = "/dev/video0"
	}
	if !cfg.Pattern.Valid() {
		return nil, fmt.Errorf("v4l2 camera: invalid CFA pattern %v", cfg.Pattern)
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("v4l2 camera %s: %w: %v", cfg.Path, ErrNoDevice, err)
	}

	cam, err := webcam.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	v := &V4L2{cam: cam, cfg: cfg, name: cfg.Path}
	if name, err := cam.GetName(); err == nil && name != "" {
		v.name = name
	}

	if err := v.negotiateFormat(); err != nil {
		cam.Close()
		return nil, err
	}
	debug.Info("Opened %s (%dx%d, %d-bit %s)", v.name, v.width, v.height, v.depth, cfg.Pattern)
	return v, nil
}

// negotiateFormat picks the best supported Bayer fourcc for the pattern.
func (v *V4L2) negotiateFormat() error {
	supported := v.cam.GetSupportedFormats()
	for _, cand := range bayerFormats[v.cfg.Pattern] {
		f := fourcc(cand.fourcc)
		if _, ok := supported[f]; !ok {
			continue
		}
		_, w, h, err := v.cam.SetImageFormat(f, uint32(v.cfg.Width), uint32(v.cfg.Height))
		if err != nil {
			debug.Verbose("Format %s rejected: %v", cand.fourcc, err)
			continue
		}
		v.width = int(w)
		v.height = int(h)
		v.depth = cand.depth
		debug.Verbose("Negotiated format %s at %dx%d", cand.fourcc, w, h)
		return nil
	}
	return fmt.Errorf("v4l2 camera %s: no supported Bayer format for pattern %s", v.cfg.Path, v.cfg.Pattern)
}

func (v *V4L2) Name() string { return v.name }

// Configure applies frame rate and exposure. Exposure controls are
// best-effort: not every driver exposes manual exposure.
func (v *V4L2) Configure(set Settings) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("v4l2 camera: %w", err)
	}
	v.settings = set

	if err := v.cam.SetFramerate(float32(set.FrameRate)); err != nil {
		return fmt.Errorf("set framerate %g: %w", set.FrameRate, err)
	}
	if err := v.cam.SetControl(ctrlExposureAuto, exposureManual); err != nil {
		debug.Verbose("Manual exposure mode not accepted: %v", err)
	}
	steps := int32(set.Exposure / (100 * time.Microsecond))
	if steps < 1 {
		steps = 1
	}
	if err := v.cam.SetControl(ctrlExposureAbsolute, steps); err != nil {
		debug.Verbose("Absolute exposure not accepted: %v", err)
	}
	debug.Device("Configure", v.name, fmt.Sprintf("framerate=%g exposure=%v", set.FrameRate, set.Exposure))
	return nil
}

// EnableCapture starts streaming. Idempotent.
func (v *V4L2) EnableCapture() error {
	if v.streaming {
		return nil
	}
	if err := v.cam.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	v.streaming = true
	debug.Device("EnableCapture", v.name, "on")
	return nil
}

// DisableCapture stops streaming and releases the kernel buffers. Idempotent.
func (v *V4L2) DisableCapture() error {
	if !v.streaming {
		return nil
	}
	if err := v.cam.StopStreaming(); err != nil {
		return fmt.Errorf("stop streaming: %w", err)
	}
	v.streaming = false
	debug.Device("DisableCapture", v.name, "off")
	return nil
}

// Next blocks until the driver delivers a frame, retrying on poll timeouts
// until the context is cancelled.
func (v *V4L2) Next(ctx context.Context) (*frame.Raw, frame.Meta, error) {
	if !v.streaming {
		return nil, frame.Meta{}, ErrCaptureDisabled
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, frame.Meta{}, err
		}
		err := v.cam.WaitForFrame(1) // seconds
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, frame.Meta{}, fmt.Errorf("wait for frame: %w", err)
		}

		buf, err := v.cam.ReadFrame()
		if err != nil {
			return nil, frame.Meta{}, fmt.Errorf("read frame: %w", err)
		}
		if len(buf) == 0 {
			continue
		}

		raw, err := v.decode(buf)
		if err != nil {
			return nil, frame.Meta{}, err
		}
		v.seq++
		meta := frame.Meta{
			Timestamp: time.Now(),
			Sequence:  v.seq,
			Exposure:  v.settings.Exposure,
			FrameRate: v.settings.FrameRate,
		}
		debug.Frame(meta.Sequence, raw.Width, raw.Height)
		return raw, meta, nil
	}
}

// decode converts the driver buffer into a raw frame. 8-bit formats carry
// one byte per sample; 12- and 16-bit formats carry two bytes per sample,
// little-endian.
func (v *V4L2) decode(buf []byte) (*frame.Raw, error) {
	n := v.width * v.height
	raw := frame.NewRaw(v.width, v.height, v.depth)
	switch {
	case v.depth == 8:
		if len(buf) < n {
			return nil, fmt.Errorf("short frame: %d bytes, want %d", len(buf), n)
		}
		for i := 0; i < n; i++ {
			raw.Pix[i] = uint16(buf[i])
		}
	default:
		if len(buf) < 2*n {
			return nil, fmt.Errorf("short frame: %d bytes, want %d", len(buf), 2*n)
		}
		for i := 0; i < n; i++ {
			raw.Pix[i] = binary.LittleEndian.Uint16(buf[2*i:])
		}
	}
	return raw, nil
}

// Close stops streaming and releases the device.
func (v *V4L2) Close() error {
	if err := v.DisableCapture(); err != nil {
		debug.Error(err)
	}
	return v.cam.Close()
}

// fourcc packs a four-character code the way V4L2 expects it.
func fourcc(s string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24)
}
