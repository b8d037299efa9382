package mqtt

import (
	"encoding/json"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr"
)

const (
	TopicCmdMotor  = "hub/cmd/motor"
	TopicCmdConfig = "hub/cmd/config"
	TopicTelemetry = "hub/telemetry"
	TopicStatus    = "hub/status"

	TelemetryInterval = time.Second
	MaxMessageSize    = 512

	inboxSize = 32
)

// Transport is the part of the broker the controller uses.
type Transport interface {
	Subscribe(filter string, handler func(topic string, payload []byte)) error
	Publish(topic string, payload []byte, retain bool) error
}

// Advertiser publishes the broker over mDNS.
type Advertiser interface {
	Publish() error
}

// MotorCommand is the payload of hub/cmd/motor. Speed is kept raw so that a
// missing or non-numeric value falls back to the per-action default.
type MotorCommand struct {
	Action string          `json:"action"`
	Speed  json.RawMessage `json:"speed,omitempty"`
}

// ConfigCommand is the payload of hub/cmd/config.
type ConfigCommand struct {
	Param string          `json:"param"`
	Value json.RawMessage `json:"value,omitempty"`
}

type Telemetry struct {
	Encoder       int32 `json:"encoder"`
	Current       int16 `json:"current"`
	MotorSpeed    int   `json:"motorSpeed"`
	WiFiConnected bool  `json:"wifiConnected"`
}

type Status struct {
	Status string `json:"status"`
}

type message struct {
	topic   string
	payload []byte
}

type handler func(state *device.State, payload []byte)

// Controller maps MQTT commands onto the device state and publishes
// telemetry. Broker callbacks only queue messages; they are applied by
// Update on the loop goroutine.
type Controller struct {
	log        logr.Logger
	clock      clock.Clock
	transport  Transport
	advertiser Advertiser
	interval   time.Duration

	handlers map[string]handler
	inbox    chan message

	begun         bool
	advertised    bool
	lastTelemetry uint64
}

func NewController(log logr.Logger, clk clock.Clock, transport Transport, advertiser Advertiser) *Controller {
	return &Controller{
		log:        log,
		clock:      clk,
		transport:  transport,
		advertiser: advertiser,
		interval:   TelemetryInterval,
		inbox:      make(chan message, inboxSize),
	}
}

func (c *Controller) Begin() error {
	c.handlers = map[string]handler{
		TopicCmdMotor:  c.processMotorCommand,
		TopicCmdConfig: c.processConfigCommand,
	}
	for topic := range c.handlers {
		if err := c.transport.Subscribe(topic, c.enqueue); err != nil {
			return err
		}
	}
	c.begun = true

	c.publish(TopicStatus, Status{Status: "online"}, true)
	c.lastTelemetry = c.clock.Millis()
	c.log.Info("Subscriptions setup complete")
	return nil
}

// enqueue runs on broker goroutines.
func (c *Controller) enqueue(topic string, payload []byte) {
	if len(payload) > MaxMessageSize {
		c.log.Info("Dropping oversized message", "topic", topic, "size", len(payload))
		return
	}
	select {
	case c.inbox <- message{topic: topic, payload: append([]byte(nil), payload...)}:
	default:
		c.log.Info("Command queue full, dropping message", "topic", topic)
	}
}

func (c *Controller) Update(state *device.State) {
	state.Connectivity.MQTTOnline = state.Connectivity.Associated
	if !c.begun || !state.Connectivity.Associated {
		return
	}

	if !c.advertised && c.advertiser != nil {
		if err := c.advertiser.Publish(); err != nil {
			c.log.V(1).Info("mDNS not started yet", "error", err.Error())
		} else {
			c.advertised = true
		}
	}

	for drained := false; !drained; {
		select {
		case m := <-c.inbox:
			c.dispatch(state, m)
		default:
			drained = true
		}
	}

	if clock.Elapsed(c.clock, c.lastTelemetry) >= c.interval {
		c.lastTelemetry = c.clock.Millis()
		c.publish(TopicTelemetry, Telemetry{
			Encoder:       state.EncoderPos,
			Current:       state.CurrentADC,
			MotorSpeed:    state.MotorSpeed,
			WiFiConnected: state.Connectivity.Associated,
		}, false)
	}
}

func (c *Controller) dispatch(state *device.State, m message) {
	c.log.V(1).Info("Received", "topic", m.topic, "payload", string(m.payload))
	h, ok := c.handlers[m.topic]
	if !ok {
		c.log.Info("No handler for topic", "topic", m.topic)
		return
	}
	h(state, m.payload)
}

func (c *Controller) processMotorCommand(state *device.State, payload []byte) {
	var cmd MotorCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		c.log.Error(err, "Failed to parse motor command", "payload", string(payload))
		return
	}
	if cmd.Action == "" {
		cmd.Action = "stop"
	}

	switch cmd.Action {
	case "forward":
		state.MotorSpeed = device.Clamp(intOr(cmd.Speed, device.MaxSpeed), 0, device.MaxSpeed)
	case "backward":
		state.MotorSpeed = device.Clamp(-intOr(cmd.Speed, device.MaxSpeed), device.MinSpeed, 0)
	case "stop":
		state.MotorSpeed = 0
	case "set":
		state.SetMotorSpeed(intOr(cmd.Speed, 0))
	default:
		c.log.Info("Unknown motor action", "action", cmd.Action)
		return
	}
	c.log.Info("Motor command", "action", cmd.Action, "speed", state.MotorSpeed)
}

func (c *Controller) processConfigCommand(state *device.State, payload []byte) {
	var cmd ConfigCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		c.log.Error(err, "Failed to parse config", "payload", string(payload))
		return
	}
	value := intOr(cmd.Value, 0)
	c.log.Info("Config", "param", cmd.Param, "value", value)

	switch cmd.Param {
	case "speed":
		state.SetMotorSpeed(value)
		c.log.Info("Motor speed set via config", "speed", state.MotorSpeed)
	default:
		c.log.V(1).Info("Ignoring unknown config parameter", "param", cmd.Param)
	}
}

func (c *Controller) publish(topic string, v any, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Error(err, "Failed to encode", "topic", topic)
		return
	}
	if err := c.transport.Publish(topic, payload, retain); err != nil {
		c.log.Error(err, "Failed to publish", "topic", topic)
	}
}

// intOr decodes raw as a number truncated to an int, or returns def when it
// is absent or not a number.
func intOr(raw json.RawMessage, def int) int {
	if len(raw) == 0 || string(raw) == "null" {
		return def
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return def
	}
	return int(f)
}
