package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mgirard/svgrab/internal/bayer"
	"github.com/mgirard/svgrab/internal/debug"
	"github.com/mgirard/svgrab/internal/frame"
)

// SimConfig describes the simulated sensor.
type SimConfig struct {
	Name    string
	Width   int
	Height  int
	Depth   int // significant bits per sample
	Pattern bayer.Pattern
}

// Sim is a simulated camera for development and tests, the counterpart to
// the V4L2 driver the same way a mock GPIO driver stands in for real pins.
// It produces a deterministic synthetic scene (horizontal red gradient,
// vertical blue gradient, green between the two) sampled through the
// configured CFA pattern, paced to the configured frame rate.
type Sim struct {
	cfg SimConfig

	mu         sync.Mutex
	settings   Settings
	configured bool
	continuous bool
	seq        uint64
	lastFrame  time.Time
}

// NewSim creates a simulated camera.
func NewSim(cfg SimConfig) (*Sim, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("sim camera: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Depth == 0 {
		cfg.Depth = 12
	}
	if cfg.Depth < 8 || cfg.Depth > 16 {
		return nil, fmt.Errorf("sim camera: bit depth must be 8-16, got %d", cfg.Depth)
	}
	if !cfg.Pattern.Valid() {
		return nil, fmt.Errorf("sim camera: invalid CFA pattern %v", cfg.Pattern)
	}
	if cfg.Name == "" {
		cfg.Name = "simulated camera"
	}
	debug.Info("Using simulated camera %dx%d (%d-bit, %s)", cfg.Width, cfg.Height, cfg.Depth, cfg.Pattern)
	return &Sim{cfg: cfg}, nil
}

func (s *Sim) Name() string { return s.cfg.Name }

// Configure applies the acquisition settings snapshot.
func (s *Sim) Configure(set Settings) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("sim camera: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = set
	s.configured = true
	debug.Device("Configure", s.cfg.Name, fmt.Sprintf("framerate=%g exposure=%v", set.FrameRate, set.Exposure))
	return nil
}

// EnableCapture starts continuous acquisition.
func (s *Sim) EnableCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return fmt.Errorf("sim camera: configure before enabling capture")
	}
	s.continuous = true
	debug.Device("EnableCapture", s.cfg.Name, "on")
	return nil
}

// DisableCapture stops continuous acquisition. Idempotent.
func (s *Sim) DisableCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuous = false
	debug.Device("DisableCapture", s.cfg.Name, "off")
	return nil
}

// Next blocks until the next synthetic frame is due, then returns it.
// The first frame is delivered immediately; subsequent frames are paced
// to the configured frame rate. Honors context cancellation.
func (s *Sim) Next(ctx context.Context) (*frame.Raw, frame.Meta, error) {
	s.mu.Lock()
	if !s.continuous {
		s.mu.Unlock()
		return nil, frame.Meta{}, ErrCaptureDisabled
	}
	set := s.settings
	var wait time.Duration
	if !s.lastFrame.IsZero() {
		due := s.lastFrame.Add(set.FramePeriod())
		wait = time.Until(due)
	}
	s.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, frame.Meta{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, frame.Meta{}, err
	}

	s.mu.Lock()
	if !s.continuous {
		s.mu.Unlock()
		return nil, frame.Meta{}, ErrCaptureDisabled
	}
	s.seq++
	seq := s.seq
	s.lastFrame = time.Now()
	ts := s.lastFrame
	s.mu.Unlock()

	raw := s.render()
	meta := frame.Meta{
		Timestamp: ts,
		Sequence:  seq,
		Exposure:  set.Exposure,
		FrameRate: set.FrameRate,
	}
	debug.Frame(seq, raw.Width, raw.Height)
	return raw, meta, nil
}

// Close disables capture. Safe to call more than once.
func (s *Sim) Close() error {
	return s.DisableCapture()
}

// render mosaics the synthetic scene through the CFA pattern. The scene is
// a pure function of pixel position, so every frame is identical.
func (s *Sim) render() *frame.Raw {
	raw := frame.NewRaw(s.cfg.Width, s.cfg.Height, s.cfg.Depth)
	white := uint32(raw.White())
	for y := 0; y < s.cfg.Height; y++ {
		for x := 0; x < s.cfg.Width; x++ {
			r := gradient(x, s.cfg.Width, white)
			b := gradient(y, s.cfg.Height, white)
			g := (r + b) / 2
			var v uint32
			switch s.cfg.Pattern.ColorAt(x, y) {
			case bayer.Red:
				v = r
			case bayer.Green:
				v = g
			case bayer.Blue:
				v = b
			}
			raw.Set(x, y, uint16(v))
		}
	}
	return raw
}

func gradient(i, n int, white uint32) uint32 {
	if n <= 1 {
		return white / 2
	}
	return uint32(i) * white / uint32(n-1)
}
