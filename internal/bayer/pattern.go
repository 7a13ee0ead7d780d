package bayer

import (
	"fmt"
	"strings"
)

// Channel identifies one of the three color channels.
type Channel uint8

const (
	Red Channel = iota
	Green
	Blue
)

// Pattern is the color filter array layout of the sensor: which of R, G, B
// each pixel of the repeating 2x2 cell records.
type Pattern uint8

const (
	RGGB Pattern = iota
	BGGR
	GRBG
	GBRG
)

// layouts holds the 2x2 cell for each pattern, indexed [y%2][x%2].
var layouts = [...][2][2]Channel{
	RGGB: {{Red, Green}, {Green, Blue}},
	BGGR: {{Blue, Green}, {Green, Red}},
	GRBG: {{Green, Red}, {Blue, Green}},
	GBRG: {{Green, Blue}, {Red, Green}},
}

var names = [...]string{
	RGGB: "RGGB",
	BGGR: "BGGR",
	GRBG: "GRBG",
	GBRG: "GBRG",
}

// Parse converts a pattern name (case-insensitive) to a Pattern.
func Parse(s string) (Pattern, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for p, name := range names {
		if up == name {
			return Pattern(p), nil
		}
	}
	return 0, fmt.Errorf("unknown CFA pattern %q (want RGGB, BGGR, GRBG or GBRG)", s)
}

func (p Pattern) String() string {
	if int(p) < len(names) {
		return names[p]
	}
	return fmt.Sprintf("Pattern(%d)", uint8(p))
}

// Valid reports whether p is one of the four known layouts.
func (p Pattern) Valid() bool {
	return int(p) < len(layouts)
}

// ColorAt returns the channel the sensor records at pixel (x, y).
func (p Pattern) ColorAt(x, y int) Channel {
	return layouts[p][y&1][x&1]
}

// PlaneColors returns the 2x2 cell row-major as DNG CFAPattern bytes
// (0 = red, 1 = green, 2 = blue).
func (p Pattern) PlaneColors() [4]byte {
	cell := layouts[p]
	return [4]byte{
		byte(cell[0][0]), byte(cell[0][1]),
		byte(cell[1][0]), byte(cell[1][1]),
	}
}
