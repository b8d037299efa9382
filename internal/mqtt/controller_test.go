package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr/testr"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

type fakeTransport struct {
	handlers  map[string]func(string, []byte)
	published []published
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]func(string, []byte){}}
}

func (f *fakeTransport) Subscribe(filter string, handler func(string, []byte)) error {
	f.handlers[filter] = handler
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, retain bool) error {
	f.published = append(f.published, published{topic, string(payload), retain})
	return nil
}

func (f *fakeTransport) deliver(topic, payload string) {
	f.handlers[topic](topic, []byte(payload))
}

func (f *fakeTransport) on(topic string) []published {
	var out []published
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeAdvertiser struct {
	failures int
	calls    int
}

func (a *fakeAdvertiser) Publish() error {
	a.calls++
	if a.calls <= a.failures {
		return errors.New("no gateway")
	}
	return nil
}

type fixture struct {
	clk        *clock.Manual
	transport  *fakeTransport
	advertiser *fakeAdvertiser
	controller *Controller
	state      device.State
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		clk:        clock.NewManual(0),
		transport:  newFakeTransport(),
		advertiser: &fakeAdvertiser{},
	}
	f.controller = NewController(testr.New(t), f.clk, f.transport, f.advertiser)
	if err := f.controller.Begin(); err != nil {
		t.Fatal(err)
	}
	f.state.Connectivity.Associated = true
	return f
}

func TestBeginPublishesRetainedStatus(t *testing.T) {
	f := newFixture(t)

	status := f.transport.on(TopicStatus)
	if len(status) != 1 {
		t.Fatalf("status published %d times, want 1", len(status))
	}
	if status[0].payload != `{"status":"online"}` || !status[0].retain {
		t.Fatalf("status = %+v", status[0])
	}
	for _, topic := range []string{TopicCmdMotor, TopicCmdConfig} {
		if _, ok := f.transport.handlers[topic]; !ok {
			t.Errorf("not subscribed to %s", topic)
		}
	}
}

func TestMotorCommands(t *testing.T) {
	cases := []struct {
		payload string
		before  int
		want    int
	}{
		{`{"action":"forward"}`, 0, 255},
		{`{"action":"forward","speed":100}`, 0, 100},
		{`{"action":"forward","speed":400}`, 0, 255},
		{`{"action":"forward","speed":-50}`, 10, 0},
		{`{"action":"backward"}`, 0, -255},
		{`{"action":"backward","speed":100}`, 0, -100},
		{`{"action":"backward","speed":-100}`, 10, 0},
		{`{"action":"stop"}`, 200, 0},
		{`{}`, 200, 0},
		{`{"action":"set","speed":-300}`, 0, -255},
		{`{"action":"set","speed":42.9}`, 0, 42},
		{`{"action":"set"}`, 99, 0},
		{`{"action":"forward","speed":"fast"}`, 0, 255},
		{`{"action":"forward","speed":null}`, 0, 255},
		{`{"action":"spin"}`, 77, 77},
		{`not json`, 77, 77},
	}
	for _, c := range cases {
		t.Run(c.payload, func(t *testing.T) {
			f := newFixture(t)
			f.state.MotorSpeed = c.before
			f.transport.deliver(TopicCmdMotor, c.payload)
			f.controller.Update(&f.state)
			if f.state.MotorSpeed != c.want {
				t.Fatalf("MotorSpeed = %d, want %d", f.state.MotorSpeed, c.want)
			}
		})
	}
}

func TestConfigCommands(t *testing.T) {
	cases := []struct {
		payload string
		want    int
	}{
		{`{"param":"speed","value":120}`, 120},
		{`{"param":"speed","value":-999}`, -255},
		{`{"param":"speed"}`, 0},
		{`{"param":"accel","value":3}`, 50},
		{`{"param":`, 50},
	}
	for _, c := range cases {
		t.Run(c.payload, func(t *testing.T) {
			f := newFixture(t)
			f.state.MotorSpeed = 50
			f.transport.deliver(TopicCmdConfig, c.payload)
			f.controller.Update(&f.state)
			if f.state.MotorSpeed != c.want {
				t.Fatalf("MotorSpeed = %d, want %d", f.state.MotorSpeed, c.want)
			}
		})
	}
}

func TestCommandsWaitForAssociation(t *testing.T) {
	f := newFixture(t)
	f.state.Connectivity.Associated = false

	f.transport.deliver(TopicCmdMotor, `{"action":"forward"}`)
	f.controller.Update(&f.state)
	if f.state.MotorSpeed != 0 {
		t.Fatal("command applied while not associated")
	}
	if f.state.Connectivity.MQTTOnline {
		t.Fatal("MQTTOnline set while not associated")
	}

	f.state.Connectivity.Associated = true
	f.controller.Update(&f.state)
	if f.state.MotorSpeed != 255 {
		t.Fatalf("MotorSpeed = %d, queued command not applied", f.state.MotorSpeed)
	}
	if !f.state.Connectivity.MQTTOnline {
		t.Fatal("MQTTOnline not set")
	}
}

func TestCommandsAppliedInOrder(t *testing.T) {
	f := newFixture(t)
	f.transport.deliver(TopicCmdMotor, `{"action":"forward"}`)
	f.transport.deliver(TopicCmdConfig, `{"param":"speed","value":-10}`)
	f.transport.deliver(TopicCmdMotor, `{"action":"set","speed":33}`)
	f.controller.Update(&f.state)
	if f.state.MotorSpeed != 33 {
		t.Fatalf("MotorSpeed = %d, want the last command", f.state.MotorSpeed)
	}
}

func TestOversizedMessageDropped(t *testing.T) {
	f := newFixture(t)
	big := make([]byte, MaxMessageSize+1)
	for i := range big {
		big[i] = ' '
	}
	copy(big, `{"action":"forward"}`)
	f.transport.deliver(TopicCmdMotor, string(big))
	f.controller.Update(&f.state)
	if f.state.MotorSpeed != 0 {
		t.Fatal("oversized message applied")
	}
}

func TestTelemetry(t *testing.T) {
	f := newFixture(t)
	f.state.EncoderPos = 1234
	f.state.CurrentADC = 512
	f.state.MotorSpeed = -80

	f.clk.Advance(TelemetryInterval - time.Millisecond)
	f.controller.Update(&f.state)
	if n := len(f.transport.on(TopicTelemetry)); n != 0 {
		t.Fatalf("telemetry published %d times before the interval", n)
	}

	f.clk.Advance(time.Millisecond)
	f.controller.Update(&f.state)
	got := f.transport.on(TopicTelemetry)
	if len(got) != 1 {
		t.Fatalf("telemetry published %d times, want 1", len(got))
	}
	if got[0].retain {
		t.Error("telemetry should not be retained")
	}
	var tm Telemetry
	if err := json.Unmarshal([]byte(got[0].payload), &tm); err != nil {
		t.Fatal(err)
	}
	want := Telemetry{Encoder: 1234, Current: 512, MotorSpeed: -80, WiFiConnected: true}
	if tm != want {
		t.Fatalf("telemetry = %+v, want %+v", tm, want)
	}
	if got[0].payload != `{"encoder":1234,"current":512,"motorSpeed":-80,"wifiConnected":true}` {
		t.Fatalf("payload = %s", got[0].payload)
	}

	f.state.Connectivity.Associated = false
	f.clk.Advance(5 * TelemetryInterval)
	f.controller.Update(&f.state)
	if n := len(f.transport.on(TopicTelemetry)); n != 1 {
		t.Fatalf("telemetry published while offline")
	}
}

func TestAdvertiseRetriedUntilStarted(t *testing.T) {
	f := newFixture(t)
	f.advertiser.failures = 2

	for i := 0; i < 5; i++ {
		f.controller.Update(&f.state)
	}
	if f.advertiser.calls != 3 {
		t.Fatalf("Publish called %d times, want 3", f.advertiser.calls)
	}
}

func TestAdvertiseWaitsForAssociation(t *testing.T) {
	f := newFixture(t)
	f.state.Connectivity.Associated = false
	f.controller.Update(&f.state)
	if f.advertiser.calls != 0 {
		t.Fatal("advertised while not associated")
	}
}
