package wifi

import (
	"context"
	"net/netip"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr"
)

// State of the station role.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	RetryPending
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case RetryPending:
		return "retry-pending"
	default:
		return "idle"
	}
}

type Config struct {
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	SetupTimeout   time.Duration
	AP             APConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 15 * time.Second,
		ReconnectDelay: 5 * time.Second,
		SetupTimeout:   10 * time.Minute,
		AP: APConfig{
			SSID:    "AlexFil Developer",
			Address: netip.MustParsePrefix("192.168.4.1/24"),
		},
	}
}

// CredentialsLoader re-reads the persisted credentials before every
// reconnect attempt.
type CredentialsLoader interface {
	Load(ctx context.Context) device.Credentials
}

// Manager owns the WiFi association lifecycle, the provisioning access point
// and the reconnection policy. It is driven by Update from the control loop
// and must only be used from that goroutine.
type Manager struct {
	ctx    context.Context
	log    logr.Logger
	clock  clock.Clock
	radio  Radio
	loader CredentialsLoader
	cfg    Config

	begun bool
	creds device.Credentials
	mode  Mode

	state        State
	connectStart uint64
	retryAnchor  uint64

	setupMode    bool
	apActive     bool
	lastActivity uint64
}

func NewManager(ctx context.Context, log logr.Logger, clk clock.Clock, radio Radio, loader CredentialsLoader, cfg Config) *Manager {
	return &Manager{
		ctx:    ctx,
		log:    log,
		clock:  clk,
		radio:  radio,
		loader: loader,
		cfg:    cfg,
	}
}

// Begin puts the radio in station mode with power saving off and starts the
// first association when creds are set. Calling it again does nothing.
func (m *Manager) Begin(creds device.Credentials) {
	if m.begun {
		m.log.V(1).Info("Already started")
		return
	}
	m.begun = true
	m.creds = creds

	mode := ModeStation
	if m.setupMode {
		mode = ModeAPStation
	}
	m.setMode(mode)
	if err := m.radio.SetPowerSave(false); err != nil {
		m.log.Error(err, "Failed to disable power saving")
	}

	if creds.Empty() {
		m.log.Info("No saved credentials, staying idle")
		return
	}
	m.connect(m.clock.Millis())
}

// Update advances the timers. It never blocks and issues at most one station
// operation per call.
func (m *Manager) Update(state *device.State) {
	if !m.begun {
		return
	}
	now := m.clock.Millis()
	associated := m.radio.Associated()

	if m.setupMode {
		// station transitions are suspended while the AP is up
		if associated {
			m.markConnected()
		}
		m.checkActivityTimeout(now, associated)
	} else {
		m.driveStation(now, associated)
	}

	m.publish(state, associated)
}

func (m *Manager) driveStation(now uint64, associated bool) {
	switch {
	case associated:
		m.markConnected()
	case m.creds.Empty():
		m.state = Idle
	case m.state == RetryPending:
		if clock.Elapsed(m.clock, m.retryAnchor) >= m.cfg.ReconnectDelay {
			m.log.Info("Retrying connection", "ssid", m.creds.SSID)
			m.connect(now)
		}
	case m.state == Connecting:
		if clock.Elapsed(m.clock, m.connectStart) > m.cfg.ConnectTimeout {
			m.log.Info("Connect timeout, will retry", "ssid", m.creds.SSID, "delay", m.cfg.ReconnectDelay)
			if err := m.radio.Disconnect(); err != nil {
				m.log.Error(err, "Failed to disconnect")
			}
			m.state = RetryPending
			m.retryAnchor = now
		}
	default:
		if m.state == Connected {
			m.log.Info("Association lost", "ssid", m.creds.SSID)
		}
		m.connect(now)
	}
}

func (m *Manager) markConnected() {
	if m.state != Connected {
		m.log.Info("Connected", "ssid", m.creds.SSID, "ip", m.radio.LocalAddr())
	}
	m.state = Connected
	m.connectStart = 0
	m.retryAnchor = 0
}

func (m *Manager) connect(now uint64) {
	if m.loader != nil {
		if creds := m.loader.Load(m.ctx); !creds.Empty() {
			m.creds = creds
		}
	}
	m.log.Info("Connecting", "ssid", m.creds.SSID)
	if err := m.radio.Connect(m.creds.SSID, m.creds.Password); err != nil {
		m.log.Error(err, "Failed to start association", "ssid", m.creds.SSID)
	}
	m.state = Connecting
	m.connectStart = now
}

// EnableSetupMode turns the provisioning AP on, or, when it is already on,
// pushes its inactivity deadline back.
func (m *Manager) EnableSetupMode() {
	now := m.clock.Millis()
	m.lastActivity = now
	if m.setupMode {
		m.log.Info("Activity detected, resetting setup timeout", "timeout", m.cfg.SetupTimeout)
		return
	}
	m.setupMode = true
	m.startAP()
	m.log.Info("Setup mode enabled", "ssid", m.cfg.AP.SSID, "address", m.cfg.AP.Address.Addr(), "timeout", m.cfg.SetupTimeout)
}

func (m *Manager) IsInSetupMode() bool {
	return m.setupMode
}

// State reports the station role state.
func (m *Manager) State() State {
	return m.state
}

func (m *Manager) checkActivityTimeout(now uint64, associated bool) {
	if clock.Elapsed(m.clock, m.lastActivity) <= m.cfg.SetupTimeout {
		return
	}
	m.log.Info("Setup mode timeout, disabling AP")
	m.stopAP()
	m.setupMode = false

	if m.creds.Empty() {
		if !associated {
			m.state = Idle
		}
		return
	}
	// leaving AP+STA can drop the station link, so associate again even
	// when it still looks up
	m.connect(now)
}

func (m *Manager) startAP() {
	m.setMode(ModeAPStation)
	if err := m.radio.StartAP(m.cfg.AP); err != nil {
		m.log.Error(err, "Failed to start AP", "ssid", m.cfg.AP.SSID)
		return
	}
	m.apActive = true
	m.log.Info("AP started", "address", m.cfg.AP.Address)
}

func (m *Manager) stopAP() {
	if err := m.radio.StopAP(); err != nil {
		m.log.Error(err, "Failed to stop AP")
	}
	m.apActive = false
	m.log.Info("AP stopped")
	m.setMode(ModeStation)
}

func (m *Manager) setMode(mode Mode) {
	if err := m.radio.SetMode(mode); err != nil {
		m.log.Error(err, "Failed to set radio mode", "mode", mode)
		return
	}
	m.mode = mode
}

func (m *Manager) publish(state *device.State, associated bool) {
	c := &state.Connectivity
	c.Associated = associated
	c.APActive = m.apActive
	c.SavedSSID = m.creds.SSID
	c.Mode = m.mode.String()
	switch {
	case associated:
		c.LocalAddress = m.radio.LocalAddr()
	case m.apActive:
		c.LocalAddress = m.cfg.AP.Address.Addr()
	default:
		c.LocalAddress = netip.Addr{}
	}
}
