package hardware

import (
	"errors"

	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr"
)

const MinDuty = 70

// MotorController drives a 3-wire H-bridge: PWM, DIR and EN.
type MotorController struct {
	log     logr.Logger
	pwm     PWM
	dir     Output
	en      Output
	minDuty int

	applied int
	begun   bool
}

func NewMotorController(log logr.Logger, pwm PWM, dir, en Output) *MotorController {
	return &MotorController{log: log, pwm: pwm, dir: dir, en: en, minDuty: MinDuty}
}

func (m *MotorController) Begin() error {
	if m.pwm == nil || m.dir == nil || m.en == nil {
		return errors.New("motor pins not configured")
	}
	m.begun = true
	m.apply(0)
	return nil
}

func (m *MotorController) Update(state *device.State) {
	if !m.begun {
		return
	}
	if speed := device.Clamp(state.MotorSpeed, device.MinSpeed, device.MaxSpeed); speed != m.applied {
		m.apply(speed)
	}
}

// Duty maps a speed in [-255, 255] to the PWM duty: 0 when stopped,
// otherwise scaled into [minDuty, 255].
func Duty(speed, minDuty int) uint8 {
	s := abs(device.Clamp(speed, device.MinSpeed, device.MaxSpeed))
	if s == 0 {
		return 0
	}
	return uint8(minDuty + s*(device.MaxSpeed-minDuty)/device.MaxSpeed)
}

func (m *MotorController) apply(speed int) {
	duty := Duty(speed, m.minDuty)
	m.log.V(1).Info("Motor", "speed", speed, "duty", duty)

	if err := m.dir.Write(speed >= 0); err != nil {
		m.log.Error(err, "Failed to set motor direction")
	}
	if err := m.pwm.SetDuty(duty); err != nil {
		m.log.Error(err, "Failed to set motor duty")
	}
	if err := m.en.Write(speed != 0); err != nil {
		m.log.Error(err, "Failed to set motor enable")
	}
	m.applied = speed
}
