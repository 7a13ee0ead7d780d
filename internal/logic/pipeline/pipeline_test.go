package pipeline

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mgirard/svgrab/internal/bayer"
	"github.com/mgirard/svgrab/internal/frame"
	"github.com/mgirard/svgrab/internal/hw/device"
)

// callLog records the ordered operations of the fakes so tests can assert
// sequencing across camera and trigger.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// fakeCam is a scriptable Camera: any step can be made to fail.
type fakeCam struct {
	log *callLog

	configureErr error
	enableErr    error
	nextErr      error
	disableErr   error

	frameValue uint16
	seq        uint64
}

func newFakeCam(log *callLog) *fakeCam {
	return &fakeCam{log: log, frameValue: 4096}
}

func (c *fakeCam) Name() string { return "fake camera" }

func (c *fakeCam) Configure(s device.Settings) error {
	c.log.add("configure")
	return c.configureErr
}

func (c *fakeCam) EnableCapture() error {
	c.log.add("enable")
	return c.enableErr
}

func (c *fakeCam) DisableCapture() error {
	c.log.add("disable")
	return c.disableErr
}

func (c *fakeCam) Next(ctx context.Context) (*frame.Raw, frame.Meta, error) {
	c.log.add("next")
	if c.nextErr != nil {
		return nil, frame.Meta{}, c.nextErr
	}
	raw := frame.NewRaw(4, 4, 16)
	for i := range raw.Pix {
		raw.Pix[i] = c.frameValue
	}
	c.seq++
	meta := frame.Meta{Timestamp: time.Now(), Sequence: c.seq}
	return raw, meta, nil
}

func (c *fakeCam) Close() error {
	c.log.add("close")
	return nil
}

type fakeTrigger struct {
	log *callLog
	err error
}

func (f *fakeTrigger) Fire() error {
	f.log.add("fire")
	return f.err
}

func testParams(dir string) Params {
	return Params{
		Settings:    device.Settings{FrameRate: 5, Exposure: 40 * time.Millisecond},
		Pattern:     bayer.GRBG,
		ShiftBits:   8,
		JPEGQuality: 95,
		PNGPath:     filepath.Join(dir, "capture.png"),
		JPEGPath:    filepath.Join(dir, "capture.jpg"),
	}
}

func TestRun_Success(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log)
	dir := t.TempDir()

	result, err := New(cam, nil).Run(context.Background(), testParams(dir))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Files) != 2 {
		t.Errorf("files = %v, want png and jpeg", result.Files)
	}
	for _, f := range result.Files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("missing output %s: %v", f, err)
		}
	}
	if result.Meta.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", result.Meta.Sequence)
	}

	// Explicit disable after fetch plus the deferred safety net.
	want := []string{"configure", "enable", "next", "disable", "disable"}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestRun_PNGIsFullDepth(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log) // uniform 4096 frame
	dir := t.TempDir()

	if _, err := New(cam, nil).Run(context.Background(), testParams(dir)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "capture.png"))
	if err != nil {
		t.Fatalf("open png: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}

	// A uniform 4096 mosaic demosaics to 4096 in every channel, and PNG
	// keeps the 16-bit samples intact.
	r, g, b, _ := img.At(1, 1).RGBA()
	if r != 4096 || g != 4096 || b != 4096 {
		t.Errorf("png sample = (%d,%d,%d), want (4096,4096,4096)", r, g, b)
	}
}

func TestRun_TriggerFiresBeforeFetch(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log)
	trig := &fakeTrigger{log: log}

	if _, err := New(cam, trig).Run(context.Background(), testParams(t.TempDir())); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var fireAt, nextAt int
	for i, c := range log.all() {
		switch c {
		case "fire":
			fireAt = i
		case "next":
			nextAt = i
		}
	}
	if fireAt >= nextAt {
		t.Errorf("strobe fired at %d, fetch at %d: strobe must precede fetch (%v)", fireAt, nextAt, log.all())
	}
}

func TestRun_DisablesOnFetchFailure(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log)
	cam.nextErr = errors.New("sensor timeout")

	_, err := New(cam, nil).Run(context.Background(), testParams(t.TempDir()))
	if err == nil {
		t.Fatal("Run should fail when the fetch fails")
	}

	// Even on the failure path, capture must be released.
	var disabled bool
	for _, c := range log.all() {
		if c == "disable" {
			disabled = true
		}
	}
	if !disabled {
		t.Errorf("capture was not disabled after fetch failure: %v", log.all())
	}
}

func TestRun_DisablesOnTriggerFailure(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log)
	trig := &fakeTrigger{log: log, err: errors.New("gpio fault")}

	if _, err := New(cam, trig).Run(context.Background(), testParams(t.TempDir())); err == nil {
		t.Fatal("Run should fail when the strobe fails")
	}

	got := log.all()
	if got[len(got)-1] != "disable" {
		t.Errorf("last call = %q, want disable (%v)", got[len(got)-1], got)
	}
}

func TestRun_StopsOnConfigureFailure(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log)
	cam.configureErr = errors.New("bad settings")

	if _, err := New(cam, nil).Run(context.Background(), testParams(t.TempDir())); err == nil {
		t.Fatal("Run should fail when configure fails")
	}
	for _, c := range log.all() {
		if c == "enable" || c == "next" {
			t.Fatalf("pipeline ran %q after configure failure: %v", c, log.all())
		}
	}
}

func TestRun_DNGOptional(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log)
	dir := t.TempDir()

	params := testParams(dir)
	params.DNGPath = filepath.Join(dir, "capture.dng")

	result, err := New(cam, nil).Run(context.Background(), params)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Files) != 3 {
		t.Fatalf("files = %v, want dng, png and jpeg", result.Files)
	}
	if result.Files[0] != params.DNGPath {
		t.Errorf("dng should be archived first, files = %v", result.Files)
	}
	if _, err := os.Stat(params.DNGPath); err != nil {
		t.Errorf("missing dng: %v", err)
	}
}

func TestRun_Deterministic(t *testing.T) {
	runOnce := func(dir string) ([]byte, []byte) {
		t.Helper()
		log := &callLog{}
		if _, err := New(newFakeCam(log), nil).Run(context.Background(), testParams(dir)); err != nil {
			t.Fatalf("Run: %v", err)
		}
		pngData, err := os.ReadFile(filepath.Join(dir, "capture.png"))
		if err != nil {
			t.Fatal(err)
		}
		jpegData, err := os.ReadFile(filepath.Join(dir, "capture.jpg"))
		if err != nil {
			t.Fatal(err)
		}
		return pngData, jpegData
	}

	pngA, jpegA := runOnce(t.TempDir())
	pngB, jpegB := runOnce(t.TempDir())

	if string(pngA) != string(pngB) {
		t.Error("two runs on the same frame produced different PNGs")
	}
	if string(jpegA) != string(jpegB) {
		t.Error("two runs on the same frame produced different JPEGs")
	}
}

func TestRun_InvalidParams(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"bad_pattern", func(p *Params) { p.Pattern = bayer.Pattern(9) }},
		{"shift_too_large", func(p *Params) { p.ShiftBits = 16 }},
		{"no_png_path", func(p *Params) { p.PNGPath = "" }},
		{"no_jpeg_path", func(p *Params) { p.JPEGPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := &callLog{}
			cam := newFakeCam(log)
			params := testParams(dir)
			tc.mutate(&params)

			if _, err := New(cam, nil).Run(context.Background(), params); err == nil {
				t.Fatal("expected error, got nil")
			}
			// Parameter validation happens before any hardware call.
			if calls := log.all(); len(calls) != 0 {
				t.Errorf("hardware touched on invalid params: %v", calls)
			}
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	log := &callLog{}
	cam := newFakeCam(log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The fake Next ignores ctx, so the post-archive check must catch it.
	_, err := New(cam, nil).Run(ctx, testParams(t.TempDir()))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
