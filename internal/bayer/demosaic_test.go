package bayer

import (
	"testing"

	"github.com/mgirard/svgrab/internal/frame"
)

func uniformRaw(w, h, depth int, v uint16) *frame.Raw {
	raw := frame.NewRaw(w, h, depth)
	for i := range raw.Pix {
		raw.Pix[i] = v
	}
	return raw
}

// A uniform sensor reads the same value regardless of filter color, so
// reconstruction must be exactly uniform in all three channels, and the
// fixed right-shift must land on the same reduced value everywhere.
func TestDemosaic_UniformMidRange(t *testing.T) {
	raw := uniformRaw(4, 4, 16, 4096)

	rgb, err := Demosaic(raw, GRBG)
	if err != nil {
		t.Fatalf("Demosaic: %v", err)
	}
	if rgb.Width != 4 || rgb.Height != 4 {
		t.Fatalf("output is %dx%d, want 4x4", rgb.Width, rgb.Height)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, b := rgb.At(x, y)
			if r != 4096 || g != 4096 || b != 4096 {
				t.Fatalf("At(%d,%d) = (%d,%d,%d), want (4096,4096,4096)", x, y, r, g, b)
			}
		}
	}

	rgb8 := rgb.Shift(8)
	for i, s := range rgb8.Pix {
		if s != 16 {
			t.Fatalf("shifted sample %d = %d, want 16", i, s)
		}
	}
}

func TestDemosaic_UniformAllPatterns(t *testing.T) {
	for _, p := range []Pattern{RGGB, BGGR, GRBG, GBRG} {
		t.Run(p.String(), func(t *testing.T) {
			raw := uniformRaw(6, 4, 12, 1234)
			rgb, err := Demosaic(raw, p)
			if err != nil {
				t.Fatalf("Demosaic: %v", err)
			}
			for i, s := range rgb.Pix {
				if s != 1234 {
					t.Fatalf("sample %d = %d, want 1234", i, s)
				}
			}
		})
	}
}

// 2x2 GRBG frame with distinct per-site values. Every pixel sees all four
// sites in its clamped 3x3 window, so the expected averages are exact.
func TestDemosaic_KnownValues2x2(t *testing.T) {
	raw := frame.NewRaw(2, 2, 12)
	raw.Set(0, 0, 100) // G
	raw.Set(1, 0, 200) // R
	raw.Set(0, 1, 300) // B
	raw.Set(1, 1, 400) // G

	rgb, err := Demosaic(raw, GRBG)
	if err != nil {
		t.Fatalf("Demosaic: %v", err)
	}

	cases := []struct {
		x, y    int
		r, g, b uint16
	}{
		{0, 0, 200, 100, 300},
		{1, 0, 200, 250, 300},
		{0, 1, 200, 250, 300},
		{1, 1, 200, 400, 300},
	}
	for _, tc := range cases {
		r, g, b := rgb.At(tc.x, tc.y)
		if r != tc.r || g != tc.g || b != tc.b {
			t.Errorf("At(%d,%d) = (%d,%d,%d), want (%d,%d,%d)",
				tc.x, tc.y, r, g, b, tc.r, tc.g, tc.b)
		}
	}
}

func TestDemosaic_SensorSampleWins(t *testing.T) {
	// The recorded sample must pass through unchanged for its own channel,
	// whatever the neighbors hold.
	raw := uniformRaw(4, 4, 12, 500)
	raw.Set(1, 0, 3000) // R site in GRBG

	rgb, err := Demosaic(raw, GRBG)
	if err != nil {
		t.Fatalf("Demosaic: %v", err)
	}
	r, _, _ := rgb.At(1, 0)
	if r != 3000 {
		t.Errorf("R at (1,0) = %d, want the recorded 3000", r)
	}
}

func TestDemosaic_Deterministic(t *testing.T) {
	raw := frame.NewRaw(8, 6, 12)
	for i := range raw.Pix {
		raw.Pix[i] = uint16(i * 37 % 4096)
	}

	a, err := Demosaic(raw, RGGB)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := Demosaic(raw.Clone(), RGGB)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("sample %d differs between runs: %d != %d", i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestDemosaic_InputUntouched(t *testing.T) {
	raw := uniformRaw(4, 4, 12, 777)
	orig := raw.Clone()
	if _, err := Demosaic(raw, GBRG); err != nil {
		t.Fatalf("Demosaic: %v", err)
	}
	for i := range raw.Pix {
		if raw.Pix[i] != orig.Pix[i] {
			t.Fatalf("input sample %d mutated", i)
		}
	}
}

func TestDemosaic_Errors(t *testing.T) {
	cases := []struct {
		name    string
		raw     *frame.Raw
		pattern Pattern
	}{
		{"nil_frame", nil, GRBG},
		{"short_buffer", &frame.Raw{Pix: make([]uint16, 3), Width: 2, Height: 2, Depth: 12}, GRBG},
		{"bad_pattern", uniformRaw(2, 2, 12, 1), Pattern(99)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Demosaic(tc.raw, tc.pattern); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
