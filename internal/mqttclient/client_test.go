package mqttclient

import (
	"testing"
)

func TestParseBroker(t *testing.T) {
	for _, c := range []struct {
		where string
		want  string
	}{
		{"192.168.1.50", "tcp://192.168.1.50:1883"},
		{"192.168.1.50:1884", "tcp://192.168.1.50:1884"},
		{"hub.local", "tcp://hub.local:1883"},
		{"hub.local:8883", "tcp://hub.local:8883"},
		{"[fe80::1]:1883", "tcp://[fe80::1]:1883"},
	} {
		u, err := parseBroker(c.where)
		if err != nil {
			t.Errorf("parseBroker(%q): %v", c.where, err)
			continue
		}
		if u.String() != c.want {
			t.Errorf("parseBroker(%q) = %s, want %s", c.where, u, c.want)
		}
	}
}

func TestParseBrokerInvalidPort(t *testing.T) {
	for _, where := range []string{"hub.local:mqtt", "hub.local:0", "hub.local:70000"} {
		if _, err := parseBroker(where); err == nil {
			t.Errorf("parseBroker(%q) accepted", where)
		}
	}
}
