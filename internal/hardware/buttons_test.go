package hardware

import (
	"testing"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr/testr"
)

type setupRecorder struct{ calls int }

func (r *setupRecorder) EnableSetupMode() { r.calls++ }

type buttonsFixture struct {
	clk     *clock.Manual
	pins    *SimPins
	setup   *setupRecorder
	buttons *Buttons
	state   device.State
}

func newButtonsFixture(t *testing.T) *buttonsFixture {
	f := &buttonsFixture{
		clk:   clock.NewManual(0),
		pins:  NewSimPins(),
		setup: &setupRecorder{},
	}
	f.buttons = NewButtons(testr.New(t), f.clk, f.pins.Up, f.pins.Down, f.pins.Setup, f.setup)
	if err := f.buttons.Begin(); err != nil {
		t.Fatal(err)
	}
	return f
}

// run ticks the buttons every 5ms for d.
func (f *buttonsFixture) run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += 5 * time.Millisecond {
		f.buttons.Update(&f.state)
		f.clk.Advance(5 * time.Millisecond)
	}
}

func TestUpHoldRunsMotor(t *testing.T) {
	f := newButtonsFixture(t)

	f.pins.Up.Set(false)
	f.run(DebounceTime + MotorHoldTime + 20*time.Millisecond)
	if f.state.MotorSpeed != device.MaxSpeed {
		t.Fatalf("MotorSpeed = %d, want %d", f.state.MotorSpeed, device.MaxSpeed)
	}

	f.pins.Up.Set(true)
	f.run(100 * time.Millisecond)
	if f.state.MotorSpeed != 0 {
		t.Fatalf("MotorSpeed = %d after release, want 0", f.state.MotorSpeed)
	}
}

func TestDownHoldReversesMotor(t *testing.T) {
	f := newButtonsFixture(t)

	f.pins.Down.Set(false)
	f.run(DebounceTime + MotorHoldTime + 20*time.Millisecond)
	if f.state.MotorSpeed != device.MinSpeed {
		t.Fatalf("MotorSpeed = %d, want %d", f.state.MotorSpeed, device.MinSpeed)
	}
	f.pins.Down.Set(true)
	f.run(100 * time.Millisecond)
	if f.state.MotorSpeed != 0 {
		t.Fatalf("MotorSpeed = %d after release, want 0", f.state.MotorSpeed)
	}
}

func TestTapStopsWithoutRunning(t *testing.T) {
	f := newButtonsFixture(t)
	f.state.MotorSpeed = 120

	f.pins.Up.Set(false)
	for elapsed := time.Duration(0); elapsed < 300*time.Millisecond; elapsed += 5 * time.Millisecond {
		f.buttons.Update(&f.state)
		f.clk.Advance(5 * time.Millisecond)
		if f.state.MotorSpeed == device.MaxSpeed {
			t.Fatalf("tap ran the motor at full speed after %v", elapsed)
		}
	}
	f.pins.Up.Set(true)
	f.run(100 * time.Millisecond)
	if f.state.MotorSpeed != 0 {
		t.Fatalf("MotorSpeed = %d after a tap, want 0", f.state.MotorSpeed)
	}
}

func TestBounceIsIgnored(t *testing.T) {
	f := newButtonsFixture(t)
	f.state.MotorSpeed = 42

	for i := 0; i < 10; i++ {
		f.pins.Up.Set(i%2 == 1)
		f.run(10 * time.Millisecond)
	}
	f.pins.Up.Set(true)
	f.run(100 * time.Millisecond)
	if f.state.MotorSpeed != 42 {
		t.Fatalf("MotorSpeed = %d, bounce should not register", f.state.MotorSpeed)
	}
}

func TestSetupHoldEnablesSetupModeOnce(t *testing.T) {
	f := newButtonsFixture(t)

	f.pins.Setup.Set(false)
	f.run(4 * time.Second)
	if f.setup.calls != 0 {
		t.Fatal("setup mode enabled before the hold time")
	}
	f.run(2 * time.Second)
	if f.setup.calls != 1 {
		t.Fatalf("EnableSetupMode called %d times, want 1", f.setup.calls)
	}
	f.run(10 * time.Second)
	if f.setup.calls != 1 {
		t.Fatalf("EnableSetupMode called %d times while still held, want 1", f.setup.calls)
	}

	f.pins.Setup.Set(true)
	f.run(100 * time.Millisecond)
	f.pins.Setup.Set(false)
	f.run(6 * time.Second)
	if f.setup.calls != 2 {
		t.Fatalf("EnableSetupMode called %d times after a second press, want 2", f.setup.calls)
	}
}

func TestSetupShortPress(t *testing.T) {
	f := newButtonsFixture(t)

	f.pins.Setup.Set(false)
	f.run(time.Second)
	f.pins.Setup.Set(true)
	f.run(10 * time.Second)
	if f.setup.calls != 0 {
		t.Fatalf("EnableSetupMode called %d times on a short press", f.setup.calls)
	}
}
