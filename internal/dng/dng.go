// Package dng writes Bayer raw frames to a minimal DNG container: a
// little-endian TIFF with a single IFD and one uncompressed 16-bit strip,
// tagged with the CFA layout so raw converters can demosaic it themselves.
package dng

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/mgirard/svgrab/internal/bayer"
	"github.com/mgirard/svgrab/internal/frame"
)

// TIFF field types used here.
const (
	typeByte  = 1
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
)

// Tag IDs (TIFF 6.0 baseline + DNG 1.4).
const (
	tagNewSubfileType    = 254
	tagImageWidth        = 256
	tagImageLength       = 257
	tagBitsPerSample     = 258
	tagCompression       = 259
	tagPhotometric       = 262
	tagModel             = 272
	tagStripOffsets      = 273
	tagSamplesPerPixel   = 277
	tagRowsPerStrip      = 278
	tagStripByteCounts   = 279
	tagPlanarConfig      = 284
	tagSoftware          = 305
	tagCFARepeatDim      = 33421
	tagCFAPattern        = 33422
	tagDNGVersion        = 50706
	tagDNGBackward       = 50707
	tagUniqueCameraModel = 50708
	tagWhiteLevel        = 50717
)

// photometricCFA marks the image as a color filter array mosaic.
const photometricCFA = 32803

// Options controls the metadata written alongside the samples.
type Options struct {
	CameraName string
	Pattern    bayer.Pattern
	Software   string
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // little-endian encoded field data
}

// Write persists a raw frame to path as an uncompressed 16-bit CFA DNG.
// The original bit depth is recorded through the WhiteLevel tag; samples
// are stored unscaled.
func Write(path string, raw *frame.Raw, opts Options) error {
	data, err := Encode(raw, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write dng: %w", err)
	}
	return nil
}

// Encode serializes a raw frame into DNG bytes.
func Encode(raw *frame.Raw, opts Options) ([]byte, error) {
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("encode dng: %w", err)
	}
	if !opts.Pattern.Valid() {
		return nil, fmt.Errorf("encode dng: invalid CFA pattern %v", opts.Pattern)
	}

	name := opts.CameraName
	if name == "" {
		name = "unknown camera"
	}
	software := opts.Software
	if software == "" {
		software = "svgrab"
	}
	cfa := opts.Pattern.PlaneColors()
	stripBytes := uint32(raw.Width * raw.Height * 2)

	entries := []entry{
		longs(tagNewSubfileType, 0),
		longs(tagImageWidth, uint32(raw.Width)),
		longs(tagImageLength, uint32(raw.Height)),
		shorts(tagBitsPerSample, 16),
		shorts(tagCompression, 1),
		shorts(tagPhotometric, photometricCFA),
		ascii(tagModel, name),
		longs(tagStripOffsets, 0), // patched below
		shorts(tagSamplesPerPixel, 1),
		longs(tagRowsPerStrip, uint32(raw.Height)),
		longs(tagStripByteCounts, stripBytes),
		shorts(tagPlanarConfig, 1),
		ascii(tagSoftware, software),
		shorts(tagCFARepeatDim, 2, 2),
		bytesEntry(tagCFAPattern, cfa[:]),
		bytesEntry(tagDNGVersion, []byte{1, 4, 0, 0}),
		bytesEntry(tagDNGBackward, []byte{1, 1, 0, 0}),
		ascii(tagUniqueCameraModel, name),
		longs(tagWhiteLevel, uint32(raw.White())),
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: header | IFD | out-of-line field data | pixel strip.
	const headerSize = 8
	ifdSize := 2 + 12*len(entries) + 4
	extraOffset := uint32(headerSize + ifdSize)

	var extras bytes.Buffer
	offsets := make(map[uint16]uint32, len(entries))
	for _, e := range entries {
		if len(e.value) > 4 {
			offsets[e.tag] = extraOffset + uint32(extras.Len())
			extras.Write(e.value)
			if extras.Len()%2 != 0 {
				extras.WriteByte(0) // word-align field data
			}
		}
	}
	stripOffset := extraOffset + uint32(extras.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i] = longs(tagStripOffsets, stripOffset)
		}
	}

	out := new(bytes.Buffer)
	out.Grow(int(stripOffset + stripBytes))
	out.WriteString("II")
	writeU16(out, 42)
	writeU32(out, headerSize) // first IFD follows the header

	writeU16(out, uint16(len(entries)))
	for _, e := range entries {
		writeU16(out, e.tag)
		writeU16(out, e.typ)
		writeU32(out, e.count)
		if len(e.value) > 4 {
			writeU32(out, offsets[e.tag])
		} else {
			var inline [4]byte
			copy(inline[:], e.value)
			out.Write(inline[:])
		}
	}
	writeU32(out, 0) // no next IFD

	out.Write(extras.Bytes())
	for _, s := range raw.Pix {
		writeU16(out, s)
	}
	return out.Bytes(), nil
}

func shorts(tag uint16, vals ...uint16) entry {
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vals)), value: buf}
}

func longs(tag uint16, vals ...uint32) entry {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return entry{tag: tag, typ: typeLong, count: uint32(len(vals)), value: buf}
}

func bytesEntry(tag uint16, vals []byte) entry {
	return entry{tag: tag, typ: typeByte, count: uint32(len(vals)), value: vals}
}

func ascii(tag uint16, s string) entry {
	buf := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(buf)), value: buf}
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
