package wifi

import (
	"net/netip"
	"sync"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
)

// SimRadio is an in-memory radio. It records every operation it receives so
// it doubles as a test fake, and can be scripted to accept associations.
type SimRadio struct {
	mu sync.Mutex

	clock clock.Clock

	// Accept decides whether a Connect succeeds. Nil means never.
	Accept func(ssid, password string) bool
	// ScanDuration is how long a scan stays in progress.
	ScanDuration time.Duration
	Networks     []Network
	Address      netip.Addr

	mode       Mode
	powerSave  bool
	associated bool
	apUp       bool
	ap         APConfig

	scan      ScanState
	scanStart uint64

	connects    []string
	disconnects int
	apStarts    int
	apStops     int
}

func NewSimRadio(clk clock.Clock) *SimRadio {
	return &SimRadio{
		clock:        clk,
		ScanDuration: 2 * time.Second,
		Address:      netip.MustParseAddr("192.168.1.50"),
		powerSave:    true,
	}
}

func (r *SimRadio) SetMode(mode Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	if mode == ModeStation || mode == ModeOff {
		r.apUp = false
	}
	return nil
}

func (r *SimRadio) SetPowerSave(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.powerSave = enabled
	return nil
}

func (r *SimRadio) Connect(ssid, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects = append(r.connects, ssid)
	r.associated = r.Accept != nil && r.Accept(ssid, password)
	return nil
}

func (r *SimRadio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.associated = false
	return nil
}

func (r *SimRadio) Associated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.associated
}

// SetAssociated forces the association state, e.g. to simulate a lost link.
func (r *SimRadio) SetAssociated(associated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.associated = associated
}

func (r *SimRadio) LocalAddr() netip.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.associated {
		return netip.Addr{}
	}
	return r.Address
}

func (r *SimRadio) StartAP(cfg APConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apStarts++
	r.apUp = true
	r.ap = cfg
	return nil
}

func (r *SimRadio) StopAP() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apStops++
	r.apUp = false
	return nil
}

func (r *SimRadio) StartScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scan = ScanRunning
	r.scanStart = r.clock.Millis()
	return nil
}

func (r *SimRadio) ScanResults() (ScanState, []Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scan == ScanRunning && clock.Elapsed(r.clock, r.scanStart) >= r.ScanDuration {
		r.scan = ScanDone
	}
	if r.scan != ScanDone {
		return r.scan, nil
	}
	return ScanDone, append([]Network(nil), r.Networks...)
}

func (r *SimRadio) ClearScan() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scan = ScanIdle
}

// Connects returns the SSIDs of every Connect call, in order.
func (r *SimRadio) Connects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.connects...)
}

func (r *SimRadio) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

func (r *SimRadio) APStarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apStarts
}

func (r *SimRadio) APStops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apStops
}

func (r *SimRadio) APUp() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apUp
}

func (r *SimRadio) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *SimRadio) PowerSave() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powerSave
}
