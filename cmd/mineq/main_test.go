package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/calibrator"
	"github.com/mineq-project/mineq/pkg/config"
	"github.com/mineq-project/mineq/pkg/events"
	"github.com/mineq-project/mineq/pkg/transport"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// stubController replaces the serial port with a scripted controller that
// settles at low, high and nominal in that order.
func stubController(t *testing.T, low, high, nominal int) *transport.Config {
	t.Helper()
	var got transport.Config
	orig := runStandalone
	t.Cleanup(func() { runStandalone = orig })
	runStandalone = func(ctx context.Context, cfg transport.Config, rate float64, opts calibrator.Options) (calibration.Bounds, error) {
		got = cfg
		var n atomic.Int32
		tr := transport.NewScripted().OnTransmit(func(string) []string {
			switch n.Add(1) {
			case 1:
				return []string{"ack\r\n", "s79 100\r\n", fmt.Sprintf("t79 %d\r\n", low)}
			case 2:
				return []string{"ack\r\n", fmt.Sprintf("t238 %d\r\n", high)}
			default:
				return []string{"ack\r\n", fmt.Sprintf("t159 %d\r\n", nominal)}
			}
		})
		defer tr.Close()
		return calibrator.New(tr, opts).RunFullCalibration(ctx, rate)
	}
	return &got
}

func TestCalibrateSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mineq.json")
	got := stubController(t, 42, 212, 130)

	out, err := execute(t, "calibrate", "--config", path, "--port", "/dev/ttyFAKE", "--driver", "tarm", "--save")
	if err != nil {
		t.Fatalf("calibrate failed: %v\n%s", err, out)
	}
	if got.Port != "/dev/ttyFAKE" || got.Driver != "tarm" || got.BaudRate != transport.DefaultBaudRate {
		t.Fatalf("unexpected transport config %+v", *got)
	}
	for _, want := range []string{"MeasureLow", "MeasureHigh", "SettleNominal", "PWM low", "42", "212"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	conf, err := config.NewFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	if b := conf.Bounds(); b.Low != 42 || b.High != 212 {
		t.Fatalf("saved bounds = %+v", b)
	}
	if conf.Port() != "/dev/ttyFAKE" {
		t.Fatalf("saved port = %q", conf.Port())
	}
}

func TestCalibrateUsesConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mineq.json")
	conf := config.NewFileFromConfig(nil, path)
	conf.SetPort("/dev/ttyACM0")
	conf.SetBaudRate(19200)
	if err := conf.Save(); err != nil {
		t.Fatal(err)
	}
	got := stubController(t, 10, 20, 15)

	if out, err := execute(t, "calibrate", "--config", path); err != nil {
		t.Fatalf("calibrate failed: %v\n%s", err, out)
	}
	if got.Port != "/dev/ttyACM0" || got.BaudRate != 19200 {
		t.Fatalf("config defaults not applied: %+v", *got)
	}

	// Without --save the file is untouched.
	conf, err := config.NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if b := conf.Bounds(); b.Low != 128 || b.High != 128 {
		t.Fatalf("bounds changed without --save: %+v", b)
	}
}

func TestCalibrateWithoutPort(t *testing.T) {
	stubController(t, 1, 2, 3)
	_, err := execute(t, "calibrate", "--config", filepath.Join(t.TempDir(), "none.json"))
	if err == nil || !strings.Contains(err.Error(), "no serial port") {
		t.Fatalf("expected missing port error, got %v", err)
	}
}

func TestCalibrateTimeout(t *testing.T) {
	orig := runStandalone
	defer func() { runStandalone = orig }()
	runStandalone = func(context.Context, transport.Config, float64, calibrator.Options) (calibration.Bounds, error) {
		return calibration.Bounds{}, calibrator.ErrTimeout
	}

	_, err := execute(t, "calibrate", "--config", filepath.Join(t.TempDir(), "none.json"), "--port", "/dev/null")
	if err == nil || !strings.Contains(err.Error(), "check the port") {
		t.Fatalf("expected timeout hint, got %v", err)
	}
}

func TestBoundsRejectsInvalidArgs(t *testing.T) {
	if _, err := execute(t, "bounds", "12"); err == nil {
		t.Fatalf("expected error for a single argument")
	}
	if _, err := execute(t, "bounds", "12", "300"); err == nil || !strings.Contains(err.Error(), "high pwm") {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := execute(t, "bounds", "a", "3"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPrintEvent(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	mk := func(name string, v any) events.Event {
		data, _ := json.Marshal(v)
		return events.Event{Name: name, Data: data}
	}

	if !printEvent(cmd, mk(events.CalibrationPhase, events.CalibrationPhaseEvent{From: "Idle", To: "MeasureLow", Rate: 79.5})) {
		t.Fatalf("watch should continue while measuring")
	}
	if !printEvent(cmd, mk(events.CalibrationStatus, events.CalibrationStatusEvent{Mode: "stepping", PWM: 90})) {
		t.Fatalf("watch should continue on status lines")
	}
	if printEvent(cmd, mk(events.CalibrationPhase, events.CalibrationPhaseEvent{From: "SettleNominal", To: "Idle", Message: "done"})) {
		t.Fatalf("watch should stop once idle")
	}
	if printEvent(cmd, mk(events.CalibrationPhase, events.CalibrationPhaseEvent{From: "MeasureLow", To: "Error"})) {
		t.Fatalf("watch should stop on error")
	}

	s := out.String()
	for _, want := range []string{"MeasureLow", "pwm=90", "done"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}
