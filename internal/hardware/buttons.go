package hardware

import (
	"errors"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr"
)

const (
	DebounceTime  = 50 * time.Millisecond
	MotorHoldTime = 600 * time.Millisecond
	SetupHoldTime = 5 * time.Second
)

// SetupModeEnabler is the part of the connectivity manager the SETUP button
// drives.
type SetupModeEnabler interface {
	EnableSetupMode()
}

// button debounces an active-low input. press, release and hold are events,
// true for the one tick they happen on.
type button struct {
	in       Input
	holdTime time.Duration
	pressed  bool

	raw      bool
	rawSince uint64

	pressedAt uint64
	held      bool

	press   bool
	release bool
	hold    bool
}

func (b *button) tick(clk clock.Clock) {
	b.press, b.release, b.hold = false, false, false
	now := clk.Millis()
	raw := !b.in.Read()
	if raw != b.raw {
		b.raw = raw
		b.rawSince = now
	} else if raw != b.pressed && clock.Elapsed(clk, b.rawSince) >= DebounceTime {
		b.pressed = raw
		if raw {
			b.press = true
			b.pressedAt = now
			b.held = false
		} else {
			b.release = true
		}
	}
	if b.pressed && !b.held && clock.Elapsed(clk, b.pressedAt) >= b.holdTime {
		b.held = true
		b.hold = true
	}
}

// Buttons handles UP, DOWN and SETUP. Holding UP or DOWN runs the motor at
// full speed until release; releasing stops it, even after a short tap.
// SETUP held long enough turns the provisioning access point on.
type Buttons struct {
	log   logr.Logger
	clock clock.Clock
	setup SetupModeEnabler

	up, down, cfg button
}

func NewButtons(log logr.Logger, clk clock.Clock, up, down, setup Input, enabler SetupModeEnabler) *Buttons {
	return &Buttons{
		log:   log,
		clock: clk,
		setup: enabler,
		up:    button{in: up, holdTime: MotorHoldTime},
		down:  button{in: down, holdTime: MotorHoldTime},
		cfg:   button{in: setup, holdTime: SetupHoldTime},
	}
}

func (b *Buttons) Begin() error {
	if b.up.in == nil || b.down.in == nil || b.cfg.in == nil {
		return errors.New("button pins not configured")
	}
	return nil
}

func (b *Buttons) Update(state *device.State) {
	if b.up.in == nil || b.down.in == nil || b.cfg.in == nil {
		return
	}
	b.up.tick(b.clock)
	b.down.tick(b.clock)
	b.cfg.tick(b.clock)

	switch {
	case b.up.hold:
		state.SetMotorSpeed(device.MaxSpeed)
	case b.down.hold:
		state.SetMotorSpeed(device.MinSpeed)
	case b.up.release || b.down.release:
		state.SetMotorSpeed(0)
	}

	if b.cfg.press {
		b.log.Info("Setup button pressed", "hold", SetupHoldTime)
	}
	if b.cfg.hold {
		b.log.Info("Setup button held, enabling AP mode")
		if b.setup != nil {
			b.setup.EnableSetupMode()
		}
	}
	if b.cfg.release && !b.cfg.held {
		b.log.Info("Setup button released too early", "held", clock.Elapsed(b.clock, b.cfg.pressedAt))
	}
}
