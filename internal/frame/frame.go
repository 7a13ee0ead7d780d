package frame

import (
	"fmt"
	"time"
)

// Raw is a single-channel, Bayer-mosaiced sensor frame. Samples are stored
// row-major, one uint16 per pixel. Depth is the number of significant bits
// per sample (e.g. 12 for a 12-bit sensor stored in 16-bit containers).
type Raw struct {
	Pix    []uint16
	Width  int
	Height int
	Depth  int
}

// Meta carries the acquisition metadata returned alongside a frame.
type Meta struct {
	Timestamp time.Time
	Sequence  uint64
	Exposure  time.Duration
	FrameRate float64
}

// NewRaw allocates a zeroed raw frame.
func NewRaw(width, height, depth int) *Raw {
	return &Raw{
		Pix:    make([]uint16, width*height),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Validate checks internal consistency of dimensions and buffer size.
func (r *Raw) Validate() error {
	if r == nil {
		return fmt.Errorf("nil frame")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", r.Width, r.Height)
	}
	if r.Depth < 8 || r.Depth > 16 {
		return fmt.Errorf("bit depth must be 8-16, got %d", r.Depth)
	}
	if len(r.Pix) != r.Width*r.Height {
		return fmt.Errorf("pixel buffer has %d samples, want %d", len(r.Pix), r.Width*r.Height)
	}
	return nil
}

// At returns the sample at (x, y). No bounds checking.
func (r *Raw) At(x, y int) uint16 {
	return r.Pix[y*r.Width+x]
}

// Set writes the sample at (x, y). No bounds checking.
func (r *Raw) Set(x, y int, v uint16) {
	r.Pix[y*r.Width+x] = v
}

// White returns the saturation value for the frame's bit depth.
func (r *Raw) White() uint16 {
	return uint16(1<<uint(r.Depth) - 1)
}

// Clone returns a deep copy of the frame.
func (r *Raw) Clone() *Raw {
	out := NewRaw(r.Width, r.Height, r.Depth)
	copy(out.Pix, r.Pix)
	return out
}
