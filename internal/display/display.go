package display

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/fogleman/gg"
	"github.com/go-logr/logr"
)

const (
	Width          = 240
	Height         = 320
	UpdateInterval = 250 * time.Millisecond
)

// Fields, in drawing order.
const (
	FieldWiFi    = "wifi"
	FieldMQTT    = "mqtt"
	FieldSpeed   = "speed"
	FieldEncoder = "encoder"
	FieldCurrent = "current"
	FieldIP      = "ip"
	FieldSSID    = "ssid"
	FieldMode    = "mode"
	FieldFooter  = "footer"
)

type rgb struct{ r, g, b float64 }

var (
	colorBG      = rgb{0, 0, 0}
	colorText    = rgb{1, 1, 1}
	colorHeader  = rgb{0, 1, 1}
	colorValue   = rgb{0, 1, 0}
	colorAlert   = rgb{1, 0, 0}
	colorOK      = rgb{0, 1, 0}
	colorWarning = rgb{1, 1, 0}
)

// shown is what the screen currently displays.
type shown struct {
	encoder    int32
	speed      int
	current    int16
	associated bool
	apActive   bool
	mqtt       bool
	ssid       string
	addr       netip.Addr
}

// Renderer draws the status screen. Only fields whose value changed are
// redrawn, except after the AP toggled or WiFi was lost, which repaint
// everything.
type Renderer struct {
	log     logr.Logger
	clock   clock.Clock
	panel   Panel
	name    string
	version string

	dc         *gg.Context
	started    bool
	lastUpdate uint64
	prev       shown
	full       bool
	drawn      []string
}

func NewRenderer(log logr.Logger, clk clock.Clock, panel Panel, name, version string) *Renderer {
	return &Renderer{
		log:     log,
		clock:   clk,
		panel:   panel,
		name:    name,
		version: version,
		full:    true,
	}
}

func (r *Renderer) Begin() error {
	if r.panel == nil {
		return errors.New("no display panel")
	}
	r.dc = gg.NewContext(Width, Height)
	r.fill(colorBG)
	r.dc.Clear()
	r.log.Info("Display initialized", "width", Width, "height", Height)
	return nil
}

func (r *Renderer) Update(state *device.State) {
	if r.dc == nil {
		return
	}
	if r.started && clock.Elapsed(r.clock, r.lastUpdate) < UpdateInterval {
		return
	}
	r.started = true
	r.lastUpdate = r.clock.Millis()

	c := state.Connectivity
	if r.full || r.prev.apActive != c.APActive || (r.prev.associated != c.Associated && !c.Associated) {
		r.full = true
		r.fill(colorBG)
		r.dc.Clear()
		r.drawStaticLayout()
	}
	r.drawn = r.drawn[:0]

	r.drawStatus(state)
	r.drawMotor(state)
	r.drawNetwork(state)
	r.drawFooter()

	r.prev = shown{
		encoder:    state.EncoderPos,
		speed:      state.MotorSpeed,
		current:    state.CurrentADC,
		associated: c.Associated,
		apActive:   c.APActive,
		mqtt:       c.MQTTOnline,
		ssid:       c.SavedSSID,
		addr:       c.LocalAddress,
	}
	r.full = false

	if err := r.panel.Show(r.dc.Image()); err != nil {
		r.log.Error(err, "Failed to show frame")
	}
}

// Drawn lists the fields drawn by the last Update.
func (r *Renderer) Drawn() []string {
	return r.drawn
}

func (r *Renderer) fill(c rgb) {
	r.dc.SetRGB(c.r, c.g, c.b)
}

func (r *Renderer) text(c rgb, s string, x, y float64) {
	r.fill(c)
	r.dc.DrawString(s, x, y)
}

// field clears a value area and draws s in it.
func (r *Renderer) field(name string, c rgb, s string, x, y, w float64) {
	r.fill(colorBG)
	r.dc.DrawRectangle(x, y-13, w, 16)
	r.dc.Fill()
	r.text(c, s, x, y)
	r.drawn = append(r.drawn, name)
}

func (r *Renderer) hline(y float64) {
	r.fill(colorHeader)
	r.dc.SetLineWidth(1)
	r.dc.DrawLine(5, y, Width-5, y)
	r.dc.Stroke()
}

func (r *Renderer) drawStaticLayout() {
	r.fill(colorHeader)
	r.dc.DrawStringAnchored(r.name, Width/2, 15, 0.5, 0.5)
	r.hline(30)

	r.text(colorText, "WiFi:", 10, 52)
	r.text(colorText, "MQTT:", 10, 72)
	r.hline(85)

	r.text(colorText, "Motor Speed:", 10, 107)
	r.text(colorText, "Encoder Pos:", 10, 127)
	r.text(colorText, "Current:", 10, 147)
	r.hline(160)

	r.text(colorText, "IP Address:", 10, 182)
	r.text(colorText, "SSID:", 10, 202)
	r.text(colorText, "Mode:", 10, 222)
	r.hline(235)
}

func (r *Renderer) drawStatus(state *device.State) {
	c := state.Connectivity
	if r.full || r.prev.associated != c.Associated || r.prev.apActive != c.APActive {
		switch {
		case c.APActive:
			r.field(FieldWiFi, colorWarning, "AP Mode", 80, 52, 150)
		case c.Associated:
			r.field(FieldWiFi, colorOK, "Connected", 80, 52, 150)
		default:
			r.field(FieldWiFi, colorAlert, "Offline", 80, 52, 150)
		}
	}
	if r.full || r.prev.mqtt != c.MQTTOnline {
		if c.MQTTOnline {
			r.field(FieldMQTT, colorOK, "Online", 80, 72, 150)
		} else {
			r.field(FieldMQTT, colorAlert, "Offline", 80, 72, 150)
		}
	}
}

func (r *Renderer) drawMotor(state *device.State) {
	if r.full || r.prev.speed != state.MotorSpeed {
		r.field(FieldSpeed, colorValue, fmt.Sprintf("%4d/255", state.MotorSpeed), 100, 107, 60)

		bar := colorText
		switch {
		case state.MotorSpeed > 0:
			bar = colorOK
		case state.MotorSpeed < 0:
			bar = colorAlert
		}
		width := float64(abs(state.MotorSpeed)) * 60 / device.MaxSpeed
		r.fill(colorBG)
		r.dc.DrawRectangle(170, 98, 60, 10)
		r.dc.Fill()
		r.fill(colorText)
		r.dc.DrawRectangle(170, 98, 60, 10)
		r.dc.Stroke()
		if width > 0 {
			r.fill(bar)
			r.dc.DrawRectangle(170, 98, width, 10)
			r.dc.Fill()
		}
	}
	if r.full || r.prev.encoder != state.EncoderPos {
		r.field(FieldEncoder, colorValue, fmt.Sprintf("%8d", state.EncoderPos), 100, 127, 130)
	}
	if r.full || r.prev.current != state.CurrentADC {
		r.field(FieldCurrent, colorValue, fmt.Sprintf("%4d", state.CurrentADC), 100, 147, 130)
	}
}

func (r *Renderer) drawNetwork(state *device.State) {
	c := state.Connectivity
	if r.full || r.prev.associated != c.Associated || r.prev.addr != c.LocalAddress {
		ip := "Not connected"
		if (c.Associated || c.APActive) && c.LocalAddress.IsValid() {
			ip = c.LocalAddress.String()
		}
		r.field(FieldIP, colorValue, ip, 100, 182, 135)
	}
	if r.full || r.prev.ssid != c.SavedSSID {
		r.field(FieldSSID, colorValue, shortSSID(c.SavedSSID), 100, 202, 135)
	}
	if r.full || r.prev.apActive != c.APActive || r.prev.associated != c.Associated {
		mode := "Not configured"
		switch {
		case c.APActive:
			mode = "Setup (AP)"
		case c.Associated:
			mode = "Station"
		}
		r.field(FieldMode, colorValue, mode, 100, 222, 135)
	}
}

func (r *Renderer) drawFooter() {
	r.fill(colorBG)
	r.dc.DrawRectangle(0, 240, Width, Height-240)
	r.dc.Fill()

	r.fill(colorText)
	r.dc.DrawStringAnchored("FW: "+r.version, Width/2, 255, 0.5, 0.5)
	r.fill(colorHeader)
	r.dc.DrawStringAnchored("UP: Start  DOWN: Stop", Width/2, 275, 0.5, 0.5)
	r.dc.DrawStringAnchored("SETUP: 5s AP", Width/2, 290, 0.5, 0.5)

	up := time.Duration(r.clock.Millis()) * time.Millisecond
	r.fill(colorText)
	r.dc.DrawStringAnchored(fmt.Sprintf("Uptime: %02d:%02d:%02d", int(up.Hours()), int(up.Minutes())%60, int(up.Seconds())%60), Width/2, 307, 0.5, 0.5)
	r.drawn = append(r.drawn, FieldFooter)
}

func shortSSID(ssid string) string {
	switch {
	case ssid == "":
		return "None"
	case len(ssid) > 16:
		return ssid[:13] + "..."
	default:
		return ssid
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
