// Package device is the camera acquisition boundary. It separates the
// immutable configuration snapshot (Settings, applied once via Configure)
// from acquisition (Next, which may block), so the rest of the application
// never touches mutable device state directly.
package device

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mgirard/svgrab/internal/frame"
)

var (
	// ErrNoDevice is returned when no camera can be found or opened.
	ErrNoDevice = errors.New("no camera device found")

	// ErrCaptureDisabled is returned by Next when continuous capture has
	// not been enabled (or has been disabled again).
	ErrCaptureDisabled = errors.New("continuous capture not enabled")
)

// Settings is the acquisition configuration applied to a camera before
// capture starts. It is a value snapshot: changing a Settings after
// Configure has no effect on the device.
type Settings struct {
	FrameRate float64       // frames per second
	Exposure  time.Duration // exposure time per frame
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	if s.FrameRate <= 0 || s.FrameRate > 1000 {
		return fmt.Errorf("framerate must be between 0 and 1000, got %g", s.FrameRate)
	}
	if s.Exposure <= 0 {
		return fmt.Errorf("exposure must be positive, got %v", s.Exposure)
	}
	return nil
}

// FramePeriod returns the time between two frames at the configured rate.
func (s Settings) FramePeriod() time.Duration {
	return time.Duration(float64(time.Second) / s.FrameRate)
}

// Camera is the high-level interface used by the capture pipeline,
// regardless of how frames are actually acquired (V4L2, simulation, ...).
type Camera interface {
	// Name identifies the device (model or path), for logs and metadata.
	Name() string

	// Configure applies an acquisition settings snapshot.
	Configure(s Settings) error

	// EnableCapture starts continuous acquisition into the device queue.
	EnableCapture() error

	// DisableCapture stops continuous acquisition and releases buffering
	// resources. Idempotent: disabling an already-disabled camera is a no-op.
	DisableCapture() error

	// Next blocks until a frame is available, the context is cancelled, or
	// the device fails. Returns ErrCaptureDisabled if continuous capture
	// is not enabled.
	Next(ctx context.Context) (*frame.Raw, frame.Meta, error)

	// Close releases the device. The camera must not be used afterwards.
	Close() error
}

// CountVideoDevices reports how many V4L2 video nodes match the glob
// pattern (default /dev/video*). The count is informational; opening a
// device when the count is zero fails with ErrNoDevice.
func CountVideoDevices(pattern string) (int, error) {
	if pattern == "" {
		pattern = "/dev/video*"
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("enumerate devices: %w", err)
	}
	return len(matches), nil
}
