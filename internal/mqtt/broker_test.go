package mqtt

import (
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/spf13/viper"
)

func TestLoadBrokerConfigDefaults(t *testing.T) {
	opts := loadBrokerConfig(testr.New(t), viper.New())
	if opts.Capabilities == nil {
		t.Fatal("default capabilities not set")
	}
}

func TestLoadBrokerConfigInvalid(t *testing.T) {
	v := viper.New()
	v.Set("mqtt.broker", "not-a-section")
	opts := loadBrokerConfig(testr.New(t), v)
	if opts.Capabilities == nil {
		t.Fatal("invalid section should fall back to defaults")
	}
}

func TestBrokerInlineRoundTrip(t *testing.T) {
	b, err := NewBroker(testr.New(t), nil, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	got := make(chan string, 1)
	if err := b.Subscribe(TopicCmdMotor, func(topic string, payload []byte) {
		got <- topic + " " + string(payload)
	}); err != nil {
		t.Fatal(err)
	}

	if err := b.Publish(TopicCmdMotor, []byte(`{"action":"stop"}`), false); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-got:
		if m != `hub/cmd/motor {"action":"stop"}` {
			t.Fatalf("got %q", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inline subscriber never called")
	}
}
