package hardware

import (
	"errors"
	"fmt"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

// ADC returns raw converter counts.
type ADC interface {
	ReadRaw() (int, error)
}

const (
	CurrentThreshold    = 20
	CurrentReadInterval = 100 * time.Millisecond
)

// CurrentSensor samples an ADC and publishes the value only when it moved by
// more than the threshold since the last published one.
type CurrentSensor struct {
	log       logr.Logger
	clock     clock.Clock
	adc       ADC
	threshold int
	interval  time.Duration

	last     int
	lastRead uint64
	sampled  bool
}

func NewCurrentSensor(log logr.Logger, clk clock.Clock, adc ADC) *CurrentSensor {
	return &CurrentSensor{
		log:       log,
		clock:     clk,
		adc:       adc,
		threshold: CurrentThreshold,
		interval:  CurrentReadInterval,
		last:      -999,
	}
}

func (c *CurrentSensor) Begin() error {
	if c.adc == nil {
		return errors.New("no ADC")
	}
	return nil
}

func (c *CurrentSensor) Update(state *device.State) {
	if c.adc == nil {
		return
	}
	if c.sampled && clock.Elapsed(c.clock, c.lastRead) < c.interval {
		return
	}
	c.sampled = true
	c.lastRead = c.clock.Millis()

	val, err := c.adc.ReadRaw()
	if err != nil {
		c.log.V(1).Info("ADC read failed", "error", err.Error())
		return
	}
	if abs(val-c.last) > c.threshold {
		state.CurrentADC = int16(val)
		c.last = val
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// SimADC returns a fixed value.
type SimADC struct {
	Value int
	Err   error
}

func (a *SimADC) ReadRaw() (int, error) {
	return a.Value, a.Err
}

// INA219 registers.
const (
	INA219Addr = 0x40

	ina219RegConfig = 0
	ina219RegShuntV = 1

	// 32V range, /8 gain, 12-bit ADCs, shunt and bus continuous.
	ina219DefaultConfig = 0x399f
)

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
}

type i2cPort struct {
	dev *i2c.Dev
}

func (p i2cPort) ReadReg(reg byte, buf []byte) error {
	return p.dev.Tx([]byte{reg}, buf)
}

func (p i2cPort) WriteReg(reg byte, buf []byte) error {
	return p.dev.Tx(append([]byte{reg}, buf...), nil)
}

// INA219 reads the shunt voltage register of a TI INA219 as the raw current
// value.
type INA219 struct {
	dev   port
	close func() error
}

// OpenINA219 opens the chip on the given I2C bus ("" selects the first one).
func OpenINA219(bus string, addr uint16) (*INA219, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", bus, err)
	}
	ina := &INA219{
		dev:   i2cPort{dev: &i2c.Dev{Bus: b, Addr: addr}},
		close: b.Close,
	}
	if err := ina.Configure(ina219DefaultConfig); err != nil {
		b.Close()
		return nil, err
	}
	return ina, nil
}

func (m *INA219) Configure(config uint16) error {
	if err := m.dev.WriteReg(ina219RegConfig, []byte{byte(config >> 8), byte(config)}); err != nil {
		return fmt.Errorf("INA219 configure: %w", err)
	}
	return nil
}

func (m *INA219) ReadRaw() (int, error) {
	var buf [2]byte
	if err := m.dev.ReadReg(ina219RegShuntV, buf[:]); err != nil {
		return 0, fmt.Errorf("INA219 read: %w", err)
	}
	return int(int16(uint16(buf[0])<<8 | uint16(buf[1]))), nil
}

func (m *INA219) Close() error {
	if m.close == nil {
		return nil
	}
	return m.close()
}
