package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr/testr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(testr.New(t), filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNamespaceDefaults(t *testing.T) {
	ctx := context.Background()
	ns := openTestStore(t).Namespace("test")

	if got := ns.GetString(ctx, "missing", "fallback"); got != "fallback" {
		t.Errorf("GetString(missing) = %q, want fallback", got)
	}
}

func TestNamespaceOverwrite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a := s.Namespace("a")
	b := s.Namespace("b")

	if err := a.PutString(ctx, "k", "1"); err != nil {
		t.Fatal(err)
	}
	if err := a.PutString(ctx, "k", "2"); err != nil {
		t.Fatal(err)
	}
	if err := b.PutString(ctx, "k", "other"); err != nil {
		t.Fatal(err)
	}

	if got := a.GetString(ctx, "k", ""); got != "2" {
		t.Errorf("a/k = %q, want 2", got)
	}
	if got := b.GetString(ctx, "k", ""); got != "other" {
		t.Errorf("b/k = %q, want other", got)
	}

	keys, err := a.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Keys = %v, want [k]", keys)
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c := NewCredentials(s)

	if got := c.Load(ctx); !got.Empty() {
		t.Fatalf("fresh store has credentials %+v", got)
	}

	want := device.Credentials{SSID: "workshop", Password: "filament42"}
	if err := c.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	if got := c.Load(ctx); got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}

	// keys are the ones the firmware used
	ns := s.Namespace(WiFiNamespace)
	if got := ns.GetString(ctx, "pass", ""); got != "filament42" {
		t.Errorf("pass = %q", got)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.Load(ctx); !got.Empty() {
		t.Errorf("credentials after Clear = %+v", got)
	}
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(testr.New(t), InMemory)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	c := NewCredentials(s)
	if err := c.Save(ctx, device.Credentials{SSID: "lab", Password: "secret123"}); err != nil {
		t.Fatal(err)
	}
	if got := c.Load(ctx); got.SSID != "lab" || got.Password != "secret123" {
		t.Fatalf("Load = %+v", got)
	}
}

func TestCredentialsSaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	creds := NewCredentials(s)

	if err := creds.Save(ctx, device.Credentials{SSID: "workshop", Password: "old-secret"}); err != nil {
		t.Fatal(err)
	}
	// keys are written sorted: pass lands before ssid is rejected
	_, err := s.db.Exec(`
    CREATE TRIGGER reject_ssid BEFORE UPDATE ON preferences
    WHEN NEW.name = 'ssid'
    BEGIN SELECT RAISE(ABORT, 'rejected'); END;`)
	if err != nil {
		t.Fatal(err)
	}

	if err := creds.Save(ctx, device.Credentials{SSID: "garage", Password: "new-secret"}); err == nil {
		t.Fatal("Save succeeded, want the ssid write to fail")
	}
	got := creds.Load(ctx)
	if got.SSID != "workshop" || got.Password != "old-secret" {
		t.Errorf("Load = %+v, want the previous pair untouched", got)
	}
}
