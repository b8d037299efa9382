package device

import (
	"net/netip"
)

const (
	MaxSpeed = 255
	MinSpeed = -MaxSpeed
)

// Radio modes, as reported in Connectivity.Mode and by /api/status.
const (
	ModeOff       = "OFF"
	ModeStation   = "STA"
	ModeAP        = "AP"
	ModeAPStation = "AP+STA"
)

// Credentials are the station credentials persisted in the preferences store.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (c Credentials) Empty() bool {
	return c.SSID == ""
}

// Connectivity is the network part of the device state.
//
// APActive and Associated are tracked independently: during provisioning the
// radio runs in combined AP+STA mode.
type Connectivity struct {
	Associated   bool       `json:"associated"`
	APActive     bool       `json:"apActive"`
	LocalAddress netip.Addr `json:"localAddress"`
	SavedSSID    string     `json:"savedSsid"`
	Mode         string     `json:"mode"`
	MQTTOnline   bool       `json:"mqttOnline"`
}

// State is the record every component reads from and writes into, once per
// loop iteration. It is owned by the loop goroutine: nothing else may touch it.
type State struct {
	Connectivity Connectivity `json:"connectivity"`

	EncoderPos int32 `json:"encoder"`
	CurrentADC int16 `json:"current"`
	MotorSpeed int   `json:"motorSpeed"`
}

// SetMotorSpeed stores speed clamped to [MinSpeed, MaxSpeed] and returns the
// stored value.
func (s *State) SetMotorSpeed(speed int) int {
	s.MotorSpeed = Clamp(speed, MinSpeed, MaxSpeed)
	return s.MotorSpeed
}

func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
