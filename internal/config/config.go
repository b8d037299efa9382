// Package config loads the hub configuration from hub.yaml, HUB_* environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/hardware"
	"github.com/asnowfix/alexfil-hub/internal/wifi"
	"github.com/spf13/viper"
)

const (
	Name      = "hub"
	EnvPrefix = "HUB"
)

type Config struct {
	DeviceName string `mapstructure:"device_name"`
	Hostname   string `mapstructure:"hostname"`

	Loop struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"loop"`

	Prefs struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"prefs"`

	Web struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"web"`

	MQTT struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"mqtt"`

	WiFi struct {
		Interface      string        `mapstructure:"interface"`
		APInterface    string        `mapstructure:"ap_interface"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
		ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
		SetupTimeout   time.Duration `mapstructure:"setup_timeout"`
		APSSID         string        `mapstructure:"ap_ssid"`
		APPassword     string        `mapstructure:"ap_password"`
		APAddress      string        `mapstructure:"ap_address"`
	} `mapstructure:"wifi"`

	Display struct {
		Panel string `mapstructure:"panel"`
		Path  string `mapstructure:"path"`
	} `mapstructure:"display"`

	Pins hardware.PinNames `mapstructure:"pins"`

	INA219 struct {
		Bus  string `mapstructure:"bus"`
		Addr uint16 `mapstructure:"addr"`
	} `mapstructure:"ina219"`
}

// SetDefaults registers the defaults on v. They match the board firmware.
func SetDefaults(v *viper.Viper) {
	wc := wifi.DefaultConfig()
	pins := hardware.DefaultPinNames()

	v.SetDefault("device_name", "AlexFil Hub")
	v.SetDefault("hostname", "hub")
	v.SetDefault("loop.interval", 5*time.Millisecond)
	v.SetDefault("prefs.path", "hub.db")
	v.SetDefault("web.addr", ":80")
	v.SetDefault("mqtt.port", 1883)

	v.SetDefault("wifi.interface", "wlan0")
	v.SetDefault("wifi.ap_interface", "uap0")
	v.SetDefault("wifi.connect_timeout", wc.ConnectTimeout)
	v.SetDefault("wifi.reconnect_delay", wc.ReconnectDelay)
	v.SetDefault("wifi.setup_timeout", wc.SetupTimeout)
	v.SetDefault("wifi.ap_ssid", wc.AP.SSID)
	v.SetDefault("wifi.ap_password", wc.AP.Password)
	v.SetDefault("wifi.ap_address", wc.AP.Address.String())

	v.SetDefault("display.panel", "framebuffer")
	v.SetDefault("display.path", "/dev/fb1")

	v.SetDefault("pins.motor_pwm", pins.MotorPWM)
	v.SetDefault("pins.motor_dir", pins.MotorDir)
	v.SetDefault("pins.motor_en", pins.MotorEN)
	v.SetDefault("pins.encoder_a", pins.EncoderA)
	v.SetDefault("pins.encoder_b", pins.EncoderB)
	v.SetDefault("pins.button_up", pins.Up)
	v.SetDefault("pins.button_down", pins.Down)
	v.SetDefault("pins.button_setup", pins.Setup)

	v.SetDefault("ina219.bus", "")
	v.SetDefault("ina219.addr", 0x40)
}

// New returns a viper instance with defaults, environment binding and, when
// file is empty, the usual search path for hub.yaml.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return v
	}
	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/alexfil-hub")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "alexfil-hub"))
	}
	return v
}

// Read loads the config file into v. A missing file is not an error unless
// it was named explicitly.
func Read(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Loop.Interval <= 0 {
		return nil, fmt.Errorf("loop.interval must be positive, got %v", cfg.Loop.Interval)
	}
	if _, err := cfg.WiFiConfig(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WiFiConfig is the connectivity manager configuration.
func (c *Config) WiFiConfig() (wifi.Config, error) {
	prefix, err := netip.ParsePrefix(c.WiFi.APAddress)
	if err != nil {
		return wifi.Config{}, fmt.Errorf("wifi.ap_address: %w", err)
	}
	return wifi.Config{
		ConnectTimeout: c.WiFi.ConnectTimeout,
		ReconnectDelay: c.WiFi.ReconnectDelay,
		SetupTimeout:   c.WiFi.SetupTimeout,
		AP: wifi.APConfig{
			SSID:     c.WiFi.APSSID,
			Password: c.WiFi.APPassword,
			Address:  prefix,
		},
	}, nil
}

func (c *Config) NMConfig() wifi.NMConfig {
	return wifi.NMConfig{
		Interface:      c.WiFi.Interface,
		APInterface:    c.WiFi.APInterface,
		ConnectTimeout: c.WiFi.ConnectTimeout,
	}
}
