package frame

import (
	"image"
	"image/color"
)

// RGB is a three-channel color frame with 16-bit samples, stored row-major
// as interleaved R, G, B triplets. Produced by demosaicing a Raw frame;
// samples keep the source bit depth (they are not rescaled to full 16-bit
// range).
type RGB struct {
	Pix    []uint16
	Width  int
	Height int
}

// NewRGB allocates a zeroed RGB frame.
func NewRGB(width, height int) *RGB {
	return &RGB{
		Pix:    make([]uint16, 3*width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the three channel samples at (x, y). No bounds checking.
func (p *RGB) At(x, y int) (r, g, b uint16) {
	i := 3 * (y*p.Width + x)
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// Set writes the three channel samples at (x, y). No bounds checking.
func (p *RGB) Set(x, y int, r, g, b uint16) {
	i := 3 * (y*p.Width + x)
	p.Pix[i] = r
	p.Pix[i+1] = g
	p.Pix[i+2] = b
}

// Shift reduces every sample by a fixed right-shift, compressing the dynamic
// range into 8 bits. out = in >> bits, per sample.
func (p *RGB) Shift(bits uint) *RGB8 {
	out := NewRGB8(p.Width, p.Height)
	for i, s := range p.Pix {
		out.Pix[i] = uint8(s >> bits)
	}
	return out
}

// Image converts the frame to a 16-bit stdlib image for PNG encoding.
// Sample values are carried over unchanged; alpha is opaque.
func (p *RGB) Image() *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			r, g, b := p.At(x, y)
			img.SetRGBA64(x, y, color.RGBA64{R: r, G: g, B: b, A: 0xffff})
		}
	}
	return img
}

// RGB8 is a three-channel color frame with 8-bit samples, stored row-major
// as interleaved R, G, B triplets.
type RGB8 struct {
	Pix    []uint8
	Width  int
	Height int
}

// NewRGB8 allocates a zeroed 8-bit RGB frame.
func NewRGB8(width, height int) *RGB8 {
	return &RGB8{
		Pix:    make([]uint8, 3*width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the three channel samples at (x, y). No bounds checking.
func (p *RGB8) At(x, y int) (r, g, b uint8) {
	i := 3 * (y*p.Width + x)
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// Image converts the frame to an 8-bit stdlib image for JPEG encoding.
func (p *RGB8) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			r, g, b := p.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}
