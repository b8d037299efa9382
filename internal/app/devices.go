package app

import (
	"context"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/config"
	"github.com/asnowfix/alexfil-hub/internal/display"
	"github.com/asnowfix/alexfil-hub/internal/hardware"
	"github.com/asnowfix/alexfil-hub/internal/wifi"
	"github.com/go-logr/logr"
)

// Devices are the peripherals the hub drives. A nil field leaves the
// matching component disabled.
type Devices struct {
	Radio   wifi.Radio
	Pins    *hardware.Pins
	Encoder hardware.Counter
	ADC     hardware.ADC
	Panel   display.Panel

	closers []func() error
}

func (d *Devices) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
	d.closers = nil
}

// OpenDevices opens the board peripherals. Failures are logged and leave the
// peripheral out, so the hub still runs with what is there.
func OpenDevices(ctx context.Context, log logr.Logger, cfg *config.Config) *Devices {
	d := &Devices{
		Radio: wifi.NewNMRadio(ctx, log.WithName("nmcli"), cfg.NMConfig()),
		Pins:  &hardware.Pins{},
	}

	pins, err := hardware.OpenPeriph(log.WithName("gpio"), cfg.Pins)
	if err != nil {
		log.Error(err, "GPIO unavailable, motor and buttons disabled")
	} else {
		d.Pins = pins
	}

	encoder, err := hardware.NewPeriphQuadrature(ctx, log.WithName("encoder"), cfg.Pins, hardware.DefaultGlitchFilter)
	if err != nil {
		log.Error(err, "Encoder unavailable")
	} else {
		d.Encoder = encoder
	}

	ina, err := hardware.OpenINA219(cfg.INA219.Bus, cfg.INA219.Addr)
	if err != nil {
		log.Error(err, "Current sensor unavailable", "bus", cfg.INA219.Bus, "addr", cfg.INA219.Addr)
	} else {
		d.ADC = ina
		d.closers = append(d.closers, ina.Close)
	}

	d.openPanel(log, cfg)
	return d
}

func (d *Devices) openPanel(log logr.Logger, cfg *config.Config) {
	panel, err := display.Open(cfg.Display.Panel, cfg.Display.Path)
	if err != nil {
		log.Error(err, "Display unavailable", "panel", cfg.Display.Panel, "path", cfg.Display.Path)
		return
	}
	if panel == nil {
		return
	}
	d.Panel = panel
	d.closers = append(d.closers, panel.Close)
}

// Sim is a simulated board. Its fields stay reachable so that tests and the
// simulator can press buttons, turn the encoder or drop the link.
type Sim struct {
	Radio   *wifi.SimRadio
	Pins    *hardware.SimPins
	Encoder *hardware.SimCounter
	ADC     *hardware.SimADC
}

func NewSim(clk clock.Clock) *Sim {
	radio := wifi.NewSimRadio(clk)
	radio.Accept = func(ssid, password string) bool { return ssid != "" }
	radio.Networks = []wifi.Network{
		{SSID: "AlexFil Lab", RSSI: -42, Secure: true},
		{SSID: "Workshop", RSSI: -67, Secure: true},
		{SSID: "Guest", RSSI: -81},
	}
	return &Sim{
		Radio:   radio,
		Pins:    hardware.NewSimPins(),
		Encoder: &hardware.SimCounter{},
		ADC:     &hardware.SimADC{Value: 512},
	}
}

// Devices returns the simulated peripherals; the panel comes from the
// display configuration, so the simulator can render into a PNG file.
func (s *Sim) Devices(log logr.Logger, cfg *config.Config) *Devices {
	d := &Devices{
		Radio:   s.Radio,
		Pins:    s.Pins.Pins(),
		Encoder: s.Encoder,
		ADC:     s.ADC,
	}
	d.openPanel(log, cfg)
	return d
}

// Spin turns the simulated encoder along with the motor, roughly one count
// per duty step per loop.
func (s *Sim) Spin(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		duty := int32(s.Pins.MotorPWM.Duty())
		if duty == 0 || !s.Pins.MotorEN.Read() {
			continue
		}
		if s.Pins.MotorDir.Read() {
			s.Encoder.Add(duty / 16)
		} else {
			s.Encoder.Add(-duty / 16)
		}
	}
}
