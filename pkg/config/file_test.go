package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mineq-project/mineq/pkg/calibration"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "mineq.json")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return p
}

func TestDefaultsWhenMissing(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.BaudRate() != 9600 {
		t.Errorf("expected baud 9600, got %d", f.BaudRate())
	}
	if f.Driver() != "bugst" {
		t.Errorf("expected bugst driver, got %s", f.Driver())
	}
	if f.TrackingRate() != calibration.SiderealRate {
		t.Errorf("expected sidereal rate, got %v", f.TrackingRate())
	}
	if f.AckTimeout() != 0 || f.SessionTimeout() != 0 {
		t.Errorf("expected no timeouts by default")
	}
	if f.Bounds() != (calibration.Bounds{Low: 128, High: 128}) {
		t.Errorf("unexpected default bounds %+v", f.Bounds())
	}
}

func TestEmptyFile(t *testing.T) {
	f, err := NewFile(writeFile(t, "  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Port() != "" {
		t.Errorf("expected empty port")
	}
}

func TestLoadValues(t *testing.T) {
	p := writeFile(t, `{
  "port": "/dev/ttyUSB0",
  "baudRate": 19200,
  "driver": "tarm",
  "pwmLow": 12,
  "pwmHigh": 240,
  "ackTimeout": "5s",
  "sessionTimeout": "10m",
  "cron": "@daily",
  "trace": true
}`)
	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Port() != "/dev/ttyUSB0" || f.BaudRate() != 19200 || f.Driver() != "tarm" {
		t.Errorf("unexpected serial settings %v", f.LogrusFields())
	}
	if f.Bounds() != (calibration.Bounds{Low: 12, High: 240}) {
		t.Errorf("unexpected bounds %+v", f.Bounds())
	}
	if f.AckTimeout() != 5*time.Second || f.SessionTimeout() != 10*time.Minute {
		t.Errorf("unexpected timeouts %s %s", f.AckTimeout(), f.SessionTimeout())
	}
	if f.Cron() != "@daily" {
		t.Errorf("unexpected cron %q", f.Cron())
	}
	if !f.Trace() {
		t.Errorf("expected trace to be enabled")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"syntax":   `{"port": }`,
		"pwm":      `{"pwmHigh": 300}`,
		"timeout":  `{"ackTimeout": "soon"}`,
		"negative": `{"sessionTimeout": "-1s"}`,
		"driver":   `{"driver": "usb"}`,
		"baud":     `{"baudRate": 0}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewFile(writeFile(t, content)); err == nil {
				t.Fatalf("expected error for %s", content)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "mineq.json")
	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.SetPort("/dev/ttyACM0")
	f.SetBounds(calibration.Bounds{Low: 3, High: 250})
	if err := f.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g, err := NewFile(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Port() != "/dev/ttyACM0" || g.Bounds() != (calibration.Bounds{Low: 3, High: 250}) {
		t.Fatalf("values not persisted: %v", g.LogrusFields())
	}

	raw, err := NewRawFileConfigFromConfig(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *raw.PWMLow != 3 || *raw.AckTimeout != "" {
		t.Fatalf("unexpected raw config %+v", raw)
	}
}

func TestSetBoundsPanicsOnInvalid(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	f.SetBounds(calibration.Bounds{Low: -1, High: 10})
}
