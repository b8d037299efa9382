package hardware

import (
	"sync"
)

// Input is a digital input. Read reports true for a high level.
type Input interface {
	Read() bool
}

// Output is a digital output.
type Output interface {
	Write(high bool) error
}

// PWM is a pulse-width modulated output with an 8-bit duty cycle.
type PWM interface {
	SetDuty(duty uint8) error
}

// Pins groups every line the hub drives. Encoder lines are owned by the
// Counter and are not listed here.
type Pins struct {
	MotorPWM PWM
	MotorDir Output
	MotorEN  Output

	Up    Input
	Down  Input
	Setup Input
}

// SimPin is an in-memory pin usable as Input, Output and PWM. Inputs idle
// high, as with the pull-ups of the real board.
type SimPin struct {
	mu     sync.Mutex
	high   bool
	duty   uint8
	writes int
}

func NewSimPin() *SimPin {
	return &SimPin{high: true}
}

func (p *SimPin) Read() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high
}

func (p *SimPin) Write(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.high = high
	p.writes++
	return nil
}

func (p *SimPin) SetDuty(duty uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duty = duty
	p.writes++
	return nil
}

// Set drives the level as seen by readers, without counting a write.
func (p *SimPin) Set(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.high = high
}

func (p *SimPin) Duty() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

func (p *SimPin) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// SimPins is a full pin set backed by SimPin, for the simulator and tests.
type SimPins struct {
	MotorPWM, MotorDir, MotorEN *SimPin
	Up, Down, Setup             *SimPin
}

func NewSimPins() *SimPins {
	return &SimPins{
		MotorPWM: NewSimPin(),
		MotorDir: NewSimPin(),
		MotorEN:  NewSimPin(),
		Up:       NewSimPin(),
		Down:     NewSimPin(),
		Setup:    NewSimPin(),
	}
}

func (s *SimPins) Pins() *Pins {
	return &Pins{
		MotorPWM: s.MotorPWM,
		MotorDir: s.MotorDir,
		MotorEN:  s.MotorEN,
		Up:       s.Up,
		Down:     s.Down,
		Setup:    s.Setup,
	}
}
