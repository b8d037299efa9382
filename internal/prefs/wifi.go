package prefs

import (
	"context"

	"github.com/asnowfix/alexfil-hub/internal/device"
)

const (
	WiFiNamespace = "wifi-cfg"
	KeySSID       = "ssid"
	KeyPassword   = "pass"
)

// Credentials persists the station credentials in the wifi-cfg namespace.
type Credentials struct {
	ns *Namespace
}

func NewCredentials(s *Store) *Credentials {
	return &Credentials{ns: s.Namespace(WiFiNamespace)}
}

func (c *Credentials) Load(ctx context.Context) device.Credentials {
	return device.Credentials{
		SSID:     c.ns.GetString(ctx, KeySSID, ""),
		Password: c.ns.GetString(ctx, KeyPassword, ""),
	}
}

func (c *Credentials) Save(ctx context.Context, creds device.Credentials) error {
	return c.ns.PutAll(ctx, map[string]string{
		KeySSID:     creds.SSID,
		KeyPassword: creds.Password,
	})
}

func (c *Credentials) Clear(ctx context.Context) error {
	return c.ns.RemoveAll(ctx, KeySSID, KeyPassword)
}
