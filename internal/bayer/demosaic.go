package bayer

import (
	"fmt"

	"github.com/mgirard/svgrab/internal/frame"
)

// Demosaic reconstructs a full three-channel RGB frame from a Bayer-mosaiced
// raw frame. Each missing channel is the rounded average of the samples of
// that channel within the 3x3 neighborhood (borders clamped), which is the
// standard bilinear reconstruction. Output samples keep the source bit depth.
//
// The result is a pure function of the input: the same frame and pattern
// always produce identical output.
func Demosaic(raw *frame.Raw, p Pattern) (*frame.RGB, error) {
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("demosaic: %w", err)
	}
	if !p.Valid() {
		return nil, fmt.Errorf("demosaic: invalid CFA pattern %v", p)
	}

	w, h := raw.Width, raw.Height
	out := frame.NewRGB(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum [3]uint32
			var cnt [3]uint32

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx := clamp(x+dx, 0, w-1)
					ny := clamp(y+dy, 0, h-1)
					c := p.ColorAt(nx, ny)
					sum[c] += uint32(raw.At(nx, ny))
					cnt[c]++
				}
			}

			// The sensor sample wins for its own channel.
			own := p.ColorAt(x, y)
			sum[own] = uint32(raw.At(x, y))
			cnt[own] = 1

			out.Set(x, y,
				avg(sum[Red], cnt[Red]),
				avg(sum[Green], cnt[Green]),
				avg(sum[Blue], cnt[Blue]),
			)
		}
	}
	return out, nil
}

// avg divides with rounding to nearest. A clamped 3x3 window always contains
// at least one sample of every channel, so cnt is never zero for valid
// patterns; the guard keeps a corrupt pattern from panicking.
func avg(sum, cnt uint32) uint16 {
	if cnt == 0 {
		return 0
	}
	return uint16((sum + cnt/2) / cnt)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
