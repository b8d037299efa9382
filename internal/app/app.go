// Package app wires the hub components together and runs the control loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/config"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/asnowfix/alexfil-hub/internal/display"
	"github.com/asnowfix/alexfil-hub/internal/hardware"
	"github.com/asnowfix/alexfil-hub/internal/mqtt"
	"github.com/asnowfix/alexfil-hub/internal/mynet"
	"github.com/asnowfix/alexfil-hub/internal/prefs"
	"github.com/asnowfix/alexfil-hub/internal/web"
	"github.com/asnowfix/alexfil-hub/internal/wifi"
	"github.com/go-logr/logr"
	"github.com/spf13/viper"
)

// ErrRestart ends Run when a restart was scheduled. The caller is expected
// to re-execute the process.
var ErrRestart = errors.New("restart requested")

// MQTTService is the DNS-SD type the broker is advertised under.
const MQTTService = "_mqtt._tcp"

// component is what the loop drives once per iteration.
type component interface {
	Update(state *device.State)
}

type App struct {
	ctx     context.Context
	log     logr.Logger
	clock   clock.Clock
	cfg     *config.Config
	v       *viper.Viper
	devices *Devices
	version string

	state device.State

	store   *prefs.Store
	creds   *prefs.Credentials
	wifi    *wifi.Manager
	web     *web.Server
	broker  *mqtt.Broker
	mdns    *mynet.Publisher
	mqtt    *mqtt.Controller
	buttons *hardware.Buttons
	encoder *hardware.EncoderReader
	current *hardware.CurrentSensor
	motor   *hardware.MotorController
	display *display.Renderer

	loop []component

	restartOnce sync.Once
	restart     chan struct{}
}

func New(ctx context.Context, log logr.Logger, clk clock.Clock, cfg *config.Config, v *viper.Viper, devices *Devices, version string) *App {
	return &App{
		ctx:     ctx,
		log:     log,
		clock:   clk,
		cfg:     cfg,
		v:       v,
		devices: devices,
		version: version,
		restart: make(chan struct{}),
	}
}

// Setup opens the preferences and starts every component, in dependency
// order. Only a preferences store that cannot be opened at all is fatal;
// other failures leave the component disabled.
func (a *App) Setup() error {
	log := a.log
	log.Info("Starting", "name", a.cfg.DeviceName, "version", a.version)

	if err := a.openPrefs(); err != nil {
		return err
	}
	a.creds = prefs.NewCredentials(a.store)
	creds := a.creds.Load(a.ctx)
	a.state.Connectivity.SavedSSID = creds.SSID

	wcfg, err := a.cfg.WiFiConfig()
	if err != nil {
		return err
	}
	a.wifi = wifi.NewManager(a.ctx, log.WithName("wifi"), a.clock, a.devices.Radio, a.creds, wcfg)
	a.wifi.Begin(creds)

	a.web = web.NewServer(a.ctx, log.WithName("web"), a.cfg.Web.Addr, a.devices.Radio, a.creds, a)
	if err := a.web.Begin(); err != nil {
		log.Error(err, "Web server disabled")
	}

	a.setupMQTT()

	pins := a.devices.Pins
	if pins == nil {
		pins = &hardware.Pins{}
	}
	a.buttons = hardware.NewButtons(log.WithName("buttons"), a.clock, pins.Up, pins.Down, pins.Setup, a.wifi)
	a.encoder = hardware.NewEncoderReader(log.WithName("encoder"), a.devices.Encoder)
	a.current = hardware.NewCurrentSensor(log.WithName("current"), a.clock, a.devices.ADC)
	a.motor = hardware.NewMotorController(log.WithName("motor"), pins.MotorPWM, pins.MotorDir, pins.MotorEN)
	a.display = display.NewRenderer(log.WithName("display"), a.clock, a.devices.Panel, a.cfg.DeviceName, a.version)

	for _, c := range []struct {
		name  string
		begin func() error
	}{
		{"buttons", a.buttons.Begin},
		{"encoder", a.encoder.Begin},
		{"current", a.current.Begin},
		{"motor", a.motor.Begin},
		{"display", a.display.Begin},
	} {
		if err := c.begin(); err != nil {
			log.Error(err, "Component disabled", "component", c.name)
		}
	}

	a.loop = []component{a.wifi, a.web}
	if a.mqtt != nil {
		a.loop = append(a.loop, a.mqtt)
	}
	a.loop = append(a.loop, a.buttons, a.encoder, a.current, a.motor, a.display)

	log.Info("Setup complete")
	return nil
}

func (a *App) openPrefs() error {
	store, err := prefs.Open(a.log.WithName("prefs"), a.cfg.Prefs.Path)
	if err == nil {
		a.store = store
		return nil
	}
	a.log.Error(err, "Preferences unavailable, credentials will not survive a restart", "path", a.cfg.Prefs.Path)
	store, err = prefs.Open(a.log.WithName("prefs"), prefs.InMemory)
	if err != nil {
		return fmt.Errorf("open in-memory preferences: %w", err)
	}
	a.store = store
	return nil
}

func (a *App) setupMQTT() {
	log := a.log.WithName("mqtt")
	port := a.cfg.MQTT.Port
	broker, err := mqtt.NewBroker(log.WithName("broker"), a.v, net.JoinHostPort("", strconv.Itoa(port)))
	if err == nil {
		err = broker.Start()
	}
	if err != nil {
		log.Error(err, "MQTT disabled")
		return
	}
	a.broker = broker
	go broker.MonitorClients(a.ctx, time.Minute)

	a.mdns = mynet.NewPublisher(log.WithName("mdns"), a.cfg.Hostname, a.cfg.Hostname, MQTTService, port, []string{"version=" + a.version})
	a.mqtt = mqtt.NewController(log, a.clock, broker, a.mdns)
	if err := a.mqtt.Begin(); err != nil {
		log.Error(err, "MQTT commands disabled")
	}
}

// Loop runs one iteration: connectivity, web, MQTT, buttons, encoder,
// current sensor, motor, display.
func (a *App) Loop() {
	for _, c := range a.loop {
		c.Update(&a.state)
	}
}

// State is the device state as of the last iteration. Only call it from
// the loop goroutine.
func (a *App) State() device.State {
	return a.state
}

// Run calls Loop every interval until ctx ends or a scheduled restart fires.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Loop.Interval)
	defer ticker.Stop()
	a.log.Info("Running", "interval", a.cfg.Loop.Interval)
	for {
		select {
		case <-ctx.Done():
			a.log.Info("Shutting down")
			return ctx.Err()
		case <-a.restart:
			a.log.Info("Restarting")
			return ErrRestart
		case <-ticker.C:
			a.Loop()
		}
	}
}

// ScheduleRestart makes Run return ErrRestart after d. Later calls do
// nothing.
func (a *App) ScheduleRestart(d time.Duration) {
	a.restartOnce.Do(func() {
		a.log.Info("Restart scheduled", "in", d)
		time.AfterFunc(d, func() { close(a.restart) })
	})
}

// Close releases what Setup opened. The web server stops with the context.
func (a *App) Close() {
	if a.motor != nil {
		a.state.SetMotorSpeed(0)
		a.motor.Update(&a.state)
	}
	if a.mdns != nil {
		a.mdns.Shutdown()
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Error(err, "Failed to close MQTT broker")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error(err, "Failed to close preferences")
		}
	}
	a.devices.Close()
}
