package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// PinNames are periph pin names, e.g. "GPIO18".
type PinNames struct {
	MotorPWM string `mapstructure:"motor_pwm"`
	MotorDir string `mapstructure:"motor_dir"`
	MotorEN  string `mapstructure:"motor_en"`
	EncoderA string `mapstructure:"encoder_a"`
	EncoderB string `mapstructure:"encoder_b"`
	Up       string `mapstructure:"button_up"`
	Down     string `mapstructure:"button_down"`
	Setup    string `mapstructure:"button_setup"`
}

// DefaultPinNames is the Raspberry Pi wiring of the hub board.
func DefaultPinNames() PinNames {
	return PinNames{
		MotorPWM: "GPIO18",
		MotorDir: "GPIO23",
		MotorEN:  "GPIO24",
		EncoderA: "GPIO5",
		EncoderB: "GPIO6",
		Up:       "GPIO17",
		Down:     "GPIO27",
		Setup:    "GPIO22",
	}
}

const pwmFrequency = 20 * physic.KiloHertz

type periphInput struct{ p gpio.PinIO }

func (i periphInput) Read() bool { return i.p.Read() == gpio.High }

type periphOutput struct{ p gpio.PinIO }

func (o periphOutput) Write(high bool) error { return o.p.Out(gpio.Level(high)) }

type periphPWM struct {
	p    gpio.PinIO
	freq physic.Frequency
}

func (o periphPWM) SetDuty(duty uint8) error {
	if duty == 0 {
		return o.p.Out(gpio.Low)
	}
	return o.p.PWM(gpio.Duty(int64(duty)*int64(gpio.DutyMax)/255), o.freq)
}

func lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	return p, nil
}

// OpenPeriph initializes the periph host drivers and configures every pin:
// buttons as pulled-up inputs, motor lines as outputs driven low.
func OpenPeriph(log logr.Logger, names PinNames) (*Pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	pins := &Pins{}
	for _, in := range []struct {
		name string
		dst  *Input
	}{
		{names.Up, &pins.Up},
		{names.Down, &pins.Down},
		{names.Setup, &pins.Setup},
	} {
		p, err := lookup(in.name)
		if err != nil {
			return nil, err
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("configure %s: %w", in.name, err)
		}
		*in.dst = periphInput{p}
	}

	for _, out := range []struct {
		name string
		dst  *Output
	}{
		{names.MotorDir, &pins.MotorDir},
		{names.MotorEN, &pins.MotorEN},
	} {
		p, err := lookup(out.name)
		if err != nil {
			return nil, err
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("configure %s: %w", out.name, err)
		}
		*out.dst = periphOutput{p}
	}

	p, err := lookup(names.MotorPWM)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure %s: %w", names.MotorPWM, err)
	}
	pins.MotorPWM = periphPWM{p: p, freq: pwmFrequency}

	log.Info("GPIO ready", "pins", names)
	return pins, nil
}

// PeriphQuadrature counts encoder edges from two periph GPIO lines. A
// watcher goroutine waits on A edges until ctx ends.
type PeriphQuadrature struct {
	*Quadrature
	a, b gpio.PinIO
}

func NewPeriphQuadrature(ctx context.Context, log logr.Logger, names PinNames, filter time.Duration) (*PeriphQuadrature, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	a, err := lookup(names.EncoderA)
	if err != nil {
		return nil, err
	}
	b, err := lookup(names.EncoderB)
	if err != nil {
		return nil, err
	}
	if err := a.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure %s: %w", names.EncoderA, err)
	}
	if err := b.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s: %w", names.EncoderB, err)
	}

	q := &PeriphQuadrature{Quadrature: NewQuadrature(filter), a: a, b: b}
	go q.watch(ctx, log)
	return q, nil
}

func (q *PeriphQuadrature) watch(ctx context.Context, log logr.Logger) {
	defer func() {
		if err := q.a.In(gpio.PullUp, gpio.NoEdge); err != nil {
			log.Error(err, "Failed to release encoder edge detection")
		}
	}()
	for ctx.Err() == nil {
		if !q.a.WaitForEdge(100 * time.Millisecond) {
			continue
		}
		q.Edge(time.Now(), q.a.Read() == gpio.High, q.b.Read() == gpio.High)
	}
}
