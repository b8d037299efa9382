package wifi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const apConnection = "hub-setup"

// NMConfig selects the interfaces the NetworkManager radio drives.
type NMConfig struct {
	Interface      string        // station interface, e.g. wlan0
	APInterface    string        // virtual AP interface created on demand, e.g. uap0
	PollInterval   time.Duration // association polling period
	ConnectTimeout time.Duration // how long nmcli may wait for an activation
}

type command struct {
	name string
	args []string
	then func(out []byte, err error)
	// when, if set, is checked by the worker right before running
	when func() bool
	// async, if set, is started in queue order on its own goroutine
	// instead of running name and args
	async func()
}

// NMRadio drives a WiFi interface through nmcli and iw. Commands are queued
// to a single worker so they run in order without blocking the caller; the
// association state is refreshed by a poller. Station activations run on
// their own goroutine and are aborted by Disconnect or the next Connect.
type NMRadio struct {
	ctx context.Context
	log logr.Logger
	cfg NMConfig
	run func(ctx context.Context, name string, args ...string) ([]byte, error)

	queue chan command

	// owned by the worker
	apIface bool

	connMu        sync.Mutex
	cancelConnect context.CancelFunc

	mu         sync.Mutex
	associated bool
	addr       netip.Addr
	scan       ScanState
	networks   []Network
}

func NewNMRadio(ctx context.Context, log logr.Logger, cfg NMConfig) *NMRadio {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	r := &NMRadio{
		ctx:   ctx,
		log:   log,
		cfg:   cfg,
		run:   runCommand,
		queue: make(chan command, 16),
	}
	go r.worker()
	go r.poll()
	return r
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

func (r *NMRadio) worker() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case c := <-r.queue:
			if c.async != nil {
				go c.async()
				continue
			}
			if c.when != nil && !c.when() {
				r.log.V(1).Info("Skipping", "command", c.name, "args", c.args)
				continue
			}
			r.log.V(1).Info("Running", "command", c.name, "args", c.args)
			out, err := r.run(r.ctx, c.name, c.args...)
			if err != nil {
				r.log.Error(err, "Radio command failed", "command", c.name)
			}
			if c.then != nil {
				c.then(out, err)
			}
		}
	}
}

func (r *NMRadio) enqueue(c command) error {
	select {
	case r.queue <- c:
		return nil
	default:
		return fmt.Errorf("radio command queue full, dropping %s %v", c.name, c.args)
	}
}

func (r *NMRadio) nmcli(then func([]byte, error), args ...string) error {
	return r.enqueue(command{name: "nmcli", args: args, then: then})
}

func (r *NMRadio) poll() {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			out, err := r.run(r.ctx, "nmcli", "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS", "device", "show", r.cfg.Interface)
			if err != nil {
				r.log.V(1).Info("Failed to poll interface", "interface", r.cfg.Interface, "error", err.Error())
				continue
			}
			associated, addr := parseDeviceShow(out)
			r.mu.Lock()
			r.associated = associated
			r.addr = addr
			r.mu.Unlock()
		}
	}
}

func (r *NMRadio) SetMode(mode Mode) error {
	switch mode {
	case ModeAPStation, ModeAP:
		return r.enqueue(command{
			name: "iw",
			args: []string{"dev", r.cfg.Interface, "interface", "add", r.cfg.APInterface, "type", "__ap"},
			when: func() bool { return !r.apIface },
			then: func(out []byte, err error) {
				r.apIface = err == nil || bytes.Contains(out, []byte("File exists"))
			},
		})
	case ModeStation:
		return r.enqueue(command{
			name: "iw",
			args: []string{"dev", r.cfg.APInterface, "del"},
			when: func() bool { return r.apIface },
			then: func(out []byte, err error) {
				r.apIface = false
			},
		})
	default:
		return r.nmcli(nil, "radio", "wifi", "off")
	}
}

func (r *NMRadio) SetPowerSave(enabled bool) error {
	state := "off"
	if enabled {
		state = "on"
	}
	return r.enqueue(command{name: "iw", args: []string{"dev", r.cfg.Interface, "set", "power_save", state}})
}

// Connect starts an activation without waiting for it. nmcli is bounded by
// ConnectTimeout and killed early by Disconnect or another Connect, so it
// never holds up the command queue.
func (r *NMRadio) Connect(ssid, password string) error {
	wait := int(r.cfg.ConnectTimeout / time.Second)
	if wait < 1 {
		wait = 1
	}
	args := []string{"--wait", strconv.Itoa(wait), "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", r.cfg.Interface)

	ctx, cancel := context.WithCancel(r.ctx)
	r.connMu.Lock()
	if r.cancelConnect != nil {
		r.cancelConnect()
	}
	r.cancelConnect = cancel
	r.connMu.Unlock()

	activate := func() {
		defer cancel()
		if ctx.Err() != nil {
			return
		}
		r.log.V(1).Info("Activating", "ssid", ssid, "interface", r.cfg.Interface)
		if _, err := r.run(ctx, "nmcli", args...); err != nil && ctx.Err() == nil {
			msg := err.Error()
			if password != "" {
				msg = strings.ReplaceAll(msg, password, "********")
			}
			r.log.Error(errors.New(msg), "Activation failed", "ssid", ssid)
		}
	}
	if err := r.enqueue(command{name: "nmcli", args: args, async: activate}); err != nil {
		cancel()
		return err
	}
	return nil
}

func (r *NMRadio) abortConnect() {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.cancelConnect != nil {
		r.cancelConnect()
		r.cancelConnect = nil
	}
}

func (r *NMRadio) Disconnect() error {
	r.abortConnect()
	r.mu.Lock()
	r.associated = false
	r.mu.Unlock()
	return r.nmcli(nil, "device", "disconnect", r.cfg.Interface)
}

func (r *NMRadio) Associated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.associated
}

func (r *NMRadio) LocalAddr() netip.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

func (r *NMRadio) StartAP(cfg APConfig) error {
	args := []string{"connection", "add", "type", "wifi", "ifname", r.cfg.APInterface,
		"con-name", apConnection, "autoconnect", "no", "ssid", cfg.SSID,
		"802-11-wireless.mode", "ap", "ipv4.method", "shared", "ipv4.addresses", cfg.Address.String()}
	if cfg.Password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", cfg.Password)
	}
	if err := r.nmcli(nil, args...); err != nil {
		return err
	}
	return r.nmcli(nil, "connection", "up", apConnection)
}

func (r *NMRadio) StopAP() error {
	return r.nmcli(nil, "connection", "delete", apConnection)
}

func (r *NMRadio) StartScan() error {
	r.mu.Lock()
	r.scan = ScanRunning
	r.networks = nil
	r.mu.Unlock()

	return r.nmcli(func(out []byte, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err == nil {
			r.networks = parseWifiList(out)
		}
		r.scan = ScanDone
	}, "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list", "ifname", r.cfg.Interface, "--rescan", "yes")
}

func (r *NMRadio) ScanResults() (ScanState, []Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scan, append([]Network(nil), r.networks...)
}

func (r *NMRadio) ClearScan() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scan = ScanIdle
	r.networks = nil
}

// parseDeviceShow reads the terse output of
// `nmcli -t -f GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS device show`.
// The setup AP connection does not count as a station association.
func parseDeviceShow(out []byte) (bool, netip.Addr) {
	var state int
	var connection string
	var addr netip.Addr

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		switch {
		case key == "GENERAL.STATE":
			code, _, _ := strings.Cut(value, " ")
			state, _ = strconv.Atoi(code)
		case key == "GENERAL.CONNECTION":
			connection = value
		case strings.HasPrefix(key, "IP4.ADDRESS") && !addr.IsValid():
			if p, err := netip.ParsePrefix(value); err == nil {
				addr = p.Addr()
			}
		}
	}
	// 100 is NM_DEVICE_STATE_ACTIVATED
	associated := state == 100 && connection != apConnection
	if !associated {
		return false, netip.Addr{}
	}
	return true, addr
}

// parseWifiList reads `nmcli -t -f SSID,SIGNAL,SECURITY device wifi list`.
// Terse mode escapes ':' inside fields as '\:'.
func parseWifiList(out []byte) []Network {
	seen := make(map[string]int)
	var networks []Network

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := splitTerse(sc.Text())
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		signal, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		n := Network{
			SSID:   fields[0],
			RSSI:   signal/2 - 100,
			Secure: fields[2] != "" && fields[2] != "--",
		}
		if i, ok := seen[n.SSID]; ok {
			if n.RSSI > networks[i].RSSI {
				networks[i] = n
			}
			continue
		}
		seen[n.SSID] = len(networks)
		networks = append(networks, n)
	}
	return networks
}

func splitTerse(line string) []string {
	var fields []string
	var b strings.Builder
	escaped := false
	for _, c := range line {
		switch {
		case escaped:
			b.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ':':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(c)
		}
	}
	return append(fields, b.String())
}
