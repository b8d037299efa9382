package wifi

import (
	"net/netip"

	"github.com/asnowfix/alexfil-hub/internal/device"
)

type Mode int

const (
	ModeOff Mode = iota
	ModeStation
	ModeAP
	ModeAPStation
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return device.ModeStation
	case ModeAP:
		return device.ModeAP
	case ModeAPStation:
		return device.ModeAPStation
	default:
		return device.ModeOff
	}
}

// APConfig describes the provisioning access point. Address is both the
// device address and the gateway handed out to clients.
type APConfig struct {
	SSID     string
	Password string
	Address  netip.Prefix
}

// Network is one entry of a WiFi scan.
type Network struct {
	SSID   string `json:"ssid"`
	RSSI   int    `json:"rssi"`
	Secure bool   `json:"secure"`
}

type ScanState int

const (
	ScanIdle ScanState = iota
	ScanRunning
	ScanDone
)

func (s ScanState) String() string {
	switch s {
	case ScanRunning:
		return "scanning"
	case ScanDone:
		return "done"
	default:
		return "idle"
	}
}

// Scanner runs asynchronous network scans, polled like the firmware's
// WiFi.scanComplete().
type Scanner interface {
	StartScan() error
	ScanResults() (ScanState, []Network)
	ClearScan()
}

// Radio is the WiFi driver the connectivity manager drives. Every method must
// return without waiting for the radio: association progress is observed by
// polling Associated.
type Radio interface {
	Scanner

	SetMode(mode Mode) error
	SetPowerSave(enabled bool) error

	Connect(ssid, password string) error
	Disconnect() error
	Associated() bool
	LocalAddr() netip.Addr

	StartAP(cfg APConfig) error
	StopAP() error
}
