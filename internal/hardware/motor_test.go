package hardware

import (
	"testing"

	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr/testr"
)

func TestDuty(t *testing.T) {
	cases := []struct {
		speed int
		want  uint8
	}{
		{0, 0},
		{1, 70},
		{-1, 70},
		{128, 162},
		{255, 255},
		{-255, 255},
		{400, 255},
	}
	for _, c := range cases {
		if got := Duty(c.speed, MinDuty); got != c.want {
			t.Errorf("Duty(%d) = %d, want %d", c.speed, got, c.want)
		}
	}
}

func TestMotorControllerPins(t *testing.T) {
	pins := NewSimPins()
	m := NewMotorController(testr.New(t), pins.MotorPWM, pins.MotorDir, pins.MotorEN)
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if pins.MotorEN.Read() {
		t.Fatal("motor enabled after Begin")
	}

	s := device.State{MotorSpeed: -255}
	m.Update(&s)
	if pins.MotorDir.Read() {
		t.Error("direction should be low for reverse")
	}
	if !pins.MotorEN.Read() {
		t.Error("motor should be enabled")
	}
	if pins.MotorPWM.Duty() != 255 {
		t.Errorf("duty = %d, want 255", pins.MotorPWM.Duty())
	}

	writes := pins.MotorPWM.Writes()
	m.Update(&s)
	m.Update(&s)
	if pins.MotorPWM.Writes() != writes {
		t.Error("unchanged speed was applied again")
	}

	s.MotorSpeed = 0
	m.Update(&s)
	if pins.MotorEN.Read() {
		t.Error("motor still enabled when stopped")
	}
	if pins.MotorPWM.Duty() != 0 {
		t.Errorf("duty = %d, want 0", pins.MotorPWM.Duty())
	}
}

func TestMotorControllerWithoutPins(t *testing.T) {
	m := NewMotorController(testr.New(t), nil, nil, nil)
	if err := m.Begin(); err == nil {
		t.Fatal("Begin without pins should fail")
	}
	s := device.State{MotorSpeed: 100}
	m.Update(&s)
}
