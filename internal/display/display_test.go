package display

import (
	"image"
	"image/color"
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr/testr"
)

type recordingPanel struct {
	frames int
}

func (p *recordingPanel) Show(img image.Image) error {
	p.frames++
	return nil
}

func (p *recordingPanel) Close() error { return nil }

func newRenderer(t *testing.T) (*Renderer, *recordingPanel, *clock.Manual) {
	clk := clock.NewManual(0)
	panel := &recordingPanel{}
	r := NewRenderer(testr.New(t), clk, panel, "AlexFil Hub", "1.0.0")
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	return r, panel, clk
}

var allFields = []string{FieldWiFi, FieldMQTT, FieldSpeed, FieldEncoder, FieldCurrent, FieldIP, FieldSSID, FieldMode, FieldFooter}

func TestFirstFrameDrawsEverything(t *testing.T) {
	r, panel, _ := newRenderer(t)
	var s device.State
	r.Update(&s)
	if !reflect.DeepEqual(r.Drawn(), allFields) {
		t.Fatalf("drawn = %v, want %v", r.Drawn(), allFields)
	}
	if panel.frames != 1 {
		t.Fatalf("frames = %d, want 1", panel.frames)
	}
}

func TestUpdateInterval(t *testing.T) {
	r, panel, clk := newRenderer(t)
	var s device.State
	r.Update(&s)

	clk.Advance(UpdateInterval - time.Millisecond)
	s.EncoderPos = 10
	r.Update(&s)
	if panel.frames != 1 {
		t.Fatalf("frames = %d, redrawn before the interval", panel.frames)
	}

	clk.Advance(time.Millisecond)
	r.Update(&s)
	if panel.frames != 2 {
		t.Fatalf("frames = %d, want 2", panel.frames)
	}
}

func TestOnlyChangedFieldsAreRedrawn(t *testing.T) {
	r, _, clk := newRenderer(t)
	var s device.State
	r.Update(&s)

	s.EncoderPos = 1234
	s.MotorSpeed = 100
	clk.Advance(UpdateInterval)
	r.Update(&s)
	want := []string{FieldSpeed, FieldEncoder, FieldFooter}
	if !reflect.DeepEqual(r.Drawn(), want) {
		t.Fatalf("drawn = %v, want %v", r.Drawn(), want)
	}

	clk.Advance(UpdateInterval)
	r.Update(&s)
	if !reflect.DeepEqual(r.Drawn(), []string{FieldFooter}) {
		t.Fatalf("drawn = %v, want only the footer", r.Drawn())
	}
}

func TestModeTransitionsRepaint(t *testing.T) {
	r, _, clk := newRenderer(t)
	var s device.State
	r.Update(&s)

	// gaining WiFi is a partial update
	s.Connectivity.Associated = true
	s.Connectivity.LocalAddress = netip.MustParseAddr("192.168.1.50")
	clk.Advance(UpdateInterval)
	r.Update(&s)
	want := []string{FieldWiFi, FieldIP, FieldMode, FieldFooter}
	if !reflect.DeepEqual(r.Drawn(), want) {
		t.Fatalf("drawn = %v, want %v", r.Drawn(), want)
	}

	// a new lease only touches the address
	s.Connectivity.LocalAddress = netip.MustParseAddr("192.168.1.77")
	clk.Advance(UpdateInterval)
	r.Update(&s)
	want = []string{FieldIP, FieldFooter}
	if !reflect.DeepEqual(r.Drawn(), want) {
		t.Fatalf("drawn = %v after address change, want %v", r.Drawn(), want)
	}

	// losing it repaints everything
	s.Connectivity.Associated = false
	clk.Advance(UpdateInterval)
	r.Update(&s)
	if !reflect.DeepEqual(r.Drawn(), allFields) {
		t.Fatalf("drawn = %v after WiFi loss, want full repaint", r.Drawn())
	}

	// so does the AP coming up
	s.Connectivity.APActive = true
	clk.Advance(UpdateInterval)
	r.Update(&s)
	if !reflect.DeepEqual(r.Drawn(), allFields) {
		t.Fatalf("drawn = %v after AP start, want full repaint", r.Drawn())
	}
}

func TestNoPanel(t *testing.T) {
	r := NewRenderer(testr.New(t), clock.NewManual(0), nil, "hub", "dev")
	if err := r.Begin(); err == nil {
		t.Fatal("Begin without a panel should fail")
	}
	var s device.State
	r.Update(&s)
}

func TestShortSSID(t *testing.T) {
	cases := map[string]string{
		"":                           "None",
		"workshop":                   "workshop",
		"exactly-sixteen!":           "exactly-sixteen!",
		"a-much-longer-network-name": "a-much-longer...",
	}
	for in, want := range cases {
		if got := shortSSID(in); got != want {
			t.Errorf("shortSSID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRGB565(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.White)
	img.Set(1, 0, color.RGBA{R: 255, A: 255})

	buf := rgb565(img, nil)
	want := []byte{0xff, 0xff, 0x00, 0xf8}
	if !reflect.DeepEqual(buf, want) {
		t.Fatalf("rgb565 = %x, want %x", buf, want)
	}
}

func TestPNGPanel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.png")
	panel, err := Open("png", path)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(testr.New(t), clock.NewManual(0), panel, "AlexFil Hub", "1.0.0")
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	var s device.State
	r.Update(&s)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != Width || cfg.Height != Height {
		t.Fatalf("png is %dx%d", cfg.Width, cfg.Height)
	}
}

func TestOpenUnknownPanel(t *testing.T) {
	if _, err := Open("hologram", ""); err == nil {
		t.Fatal("expected an error")
	}
	p, err := Open("none", "")
	if err != nil || p != nil {
		t.Fatalf("Open(none) = %v, %v", p, err)
	}
}
