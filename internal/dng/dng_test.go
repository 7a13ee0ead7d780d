package dng

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/mgirard/svgrab/internal/bayer"
	"github.com/mgirard/svgrab/internal/frame"
)

// ifdEntry is a decoded IFD entry for verification.
type ifdEntry struct {
	typ    uint16
	count  uint32
	inline [4]byte
}

// parseIFD decodes the header and first IFD of a little-endian TIFF.
func parseIFD(t *testing.T, data []byte) map[uint16]ifdEntry {
	t.Helper()
	if len(data) < 8 {
		t.Fatalf("file too short: %d bytes", len(data))
	}
	if string(data[0:2]) != "II" {
		t.Fatalf("byte order mark = %q, want \"II\"", data[0:2])
	}
	if binary.LittleEndian.Uint16(data[2:]) != 42 {
		t.Fatalf("magic = %d, want 42", binary.LittleEndian.Uint16(data[2:]))
	}
	ifdOff := binary.LittleEndian.Uint32(data[4:])
	n := int(binary.LittleEndian.Uint16(data[ifdOff:]))

	entries := make(map[uint16]ifdEntry, n)
	prevTag := -1
	for i := 0; i < n; i++ {
		off := int(ifdOff) + 2 + 12*i
		tag := binary.LittleEndian.Uint16(data[off:])
		if int(tag) <= prevTag {
			t.Errorf("IFD tags not strictly ascending at tag %d", tag)
		}
		prevTag = int(tag)
		e := ifdEntry{
			typ:   binary.LittleEndian.Uint16(data[off+2:]),
			count: binary.LittleEndian.Uint32(data[off+4:]),
		}
		copy(e.inline[:], data[off+8:off+12])
		entries[tag] = e
	}
	return entries
}

func (e ifdEntry) long() uint32  { return binary.LittleEndian.Uint32(e.inline[:]) }
func (e ifdEntry) short() uint16 { return binary.LittleEndian.Uint16(e.inline[:]) }

func testRaw(t *testing.T) *frame.Raw {
	t.Helper()
	raw := frame.NewRaw(4, 4, 12)
	for i := range raw.Pix {
		raw.Pix[i] = uint16(i * 100)
	}
	return raw
}

func TestEncode_HeaderAndGeometry(t *testing.T) {
	data, err := Encode(testRaw(t), Options{CameraName: "TestCam-01", Pattern: bayer.GRBG})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	e := parseIFD(t, data)

	if got := e[tagImageWidth].long(); got != 4 {
		t.Errorf("ImageWidth = %d, want 4", got)
	}
	if got := e[tagImageLength].long(); got != 4 {
		t.Errorf("ImageLength = %d, want 4", got)
	}
	if got := e[tagBitsPerSample].short(); got != 16 {
		t.Errorf("BitsPerSample = %d, want 16", got)
	}
	if got := e[tagCompression].short(); got != 1 {
		t.Errorf("Compression = %d, want 1 (none)", got)
	}
	if got := e[tagPhotometric].short(); got != photometricCFA {
		t.Errorf("PhotometricInterpretation = %d, want %d", got, photometricCFA)
	}
	if got := e[tagSamplesPerPixel].short(); got != 1 {
		t.Errorf("SamplesPerPixel = %d, want 1", got)
	}
}

func TestEncode_CFATags(t *testing.T) {
	cases := []struct {
		pattern bayer.Pattern
		want    [4]byte
	}{
		{bayer.GRBG, [4]byte{1, 0, 2, 1}},
		{bayer.RGGB, [4]byte{0, 1, 1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.pattern.String(), func(t *testing.T) {
			data, err := Encode(testRaw(t), Options{Pattern: tc.pattern})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			e := parseIFD(t, data)

			dim := e[tagCFARepeatDim]
			if binary.LittleEndian.Uint16(dim.inline[:]) != 2 || binary.LittleEndian.Uint16(dim.inline[2:]) != 2 {
				t.Errorf("CFARepeatPatternDim = %v, want 2x2", dim.inline)
			}
			if e[tagCFAPattern].inline != tc.want {
				t.Errorf("CFAPattern = %v, want %v", e[tagCFAPattern].inline, tc.want)
			}
			if e[tagDNGVersion].inline != [4]byte{1, 4, 0, 0} {
				t.Errorf("DNGVersion = %v, want 1.4.0.0", e[tagDNGVersion].inline)
			}
		})
	}
}

func TestEncode_WhiteLevelFromDepth(t *testing.T) {
	raw := frame.NewRaw(2, 2, 12)
	data, err := Encode(raw, Options{Pattern: bayer.GRBG})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	e := parseIFD(t, data)
	if got := e[tagWhiteLevel].long(); got != 4095 {
		t.Errorf("WhiteLevel = %d, want 4095", got)
	}
}

func TestEncode_SamplesRoundTrip(t *testing.T) {
	raw := testRaw(t)
	data, err := Encode(raw, Options{CameraName: "TestCam-01", Pattern: bayer.GRBG})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	e := parseIFD(t, data)

	off := e[tagStripOffsets].long()
	count := e[tagStripByteCounts].long()
	if count != uint32(len(raw.Pix)*2) {
		t.Fatalf("StripByteCounts = %d, want %d", count, len(raw.Pix)*2)
	}
	if int(off+count) != len(data) {
		t.Fatalf("strip [%d,%d) does not end at EOF (%d bytes)", off, off+count, len(data))
	}
	for i, want := range raw.Pix {
		got := binary.LittleEndian.Uint16(data[int(off)+2*i:])
		if got != want {
			t.Fatalf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestEncode_CameraName(t *testing.T) {
	data, err := Encode(testRaw(t), Options{CameraName: "TestCam-01", Pattern: bayer.GRBG})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	e := parseIFD(t, data)

	model := e[tagUniqueCameraModel]
	if model.count != uint32(len("TestCam-01")+1) {
		t.Fatalf("UniqueCameraModel count = %d, want %d", model.count, len("TestCam-01")+1)
	}
	off := model.long()
	got := string(data[off : off+model.count-1])
	if got != "TestCam-01" {
		t.Errorf("UniqueCameraModel = %q, want \"TestCam-01\"", got)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	raw := testRaw(t)
	opts := Options{CameraName: "TestCam-01", Pattern: bayer.GRBG}
	a, err := Encode(raw, opts)
	if err != nil {
		t.Fatalf("first encode: %v", err)
	}
	b, err := Encode(raw.Clone(), opts)
	if err != nil {
		t.Fatalf("second encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodes of the same frame differ")
	}
}

func TestEncode_Errors(t *testing.T) {
	if _, err := Encode(nil, Options{Pattern: bayer.GRBG}); err == nil {
		t.Error("nil frame should fail")
	}
	if _, err := Encode(testRaw(t), Options{Pattern: bayer.Pattern(9)}); err == nil {
		t.Error("invalid pattern should fail")
	}
}

func TestWrite_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.dng")

	if err := Write(path, testRaw(t), Options{CameraName: "cam", Pattern: bayer.GRBG}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	parseIFD(t, data)
}

func TestWrite_BadPath(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "missing", "capture.dng"), testRaw(t), Options{Pattern: bayer.GRBG})
	if err == nil {
		t.Error("expected error for missing directory, got nil")
	}
}
