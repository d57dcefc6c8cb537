package protocol

import (
	"strconv"
	"testing"

	"github.com/mineq-project/mineq/pkg/calibration"
)

func TestTrackCommand(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{calibration.SiderealRate, "t 159.115175711434\r\n"},
		{calibration.SiderealRate * 0.5, "t 79.557587855717\r\n"},
		{10, "t 10\r\n"},
		{1e21, "t 1000000000000000000000\r\n"},
	}
	for _, tt := range tests {
		if got := TrackCommand(tt.rate); got != tt.want {
			t.Errorf("TrackCommand(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestFormatRateRoundTrip(t *testing.T) {
	for _, rate := range []float64{
		calibration.SiderealRate,
		calibration.SiderealRate * 0.5,
		calibration.SiderealRate * 1.5,
		0.1,
	} {
		got, err := strconv.ParseFloat(FormatRate(rate), 64)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != rate {
			t.Errorf("FormatRate(%v) does not round trip, got %v", rate, got)
		}
	}
}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   calibration.StatusLine
		wantOK bool
	}{
		{"tracking", "t10 128\r\n", calibration.StatusLine{Mode: calibration.ModeTracking, Rate: 10, PWM: 128}, true},
		{"stepping", "s50 0\r\n", calibration.StatusLine{Mode: calibration.ModeStepping, Rate: 50, PWM: 0}, true},
		{"off", "o10 5\r\n", calibration.StatusLine{Mode: calibration.ModeOff, Rate: 10, PWM: 5}, true},
		{"leading zeros", "s007 0255\r\n", calibration.StatusLine{Mode: calibration.ModeStepping, Rate: 7, PWM: 255}, true},
		{"pwm above range is kept", "s1 300\r\n", calibration.StatusLine{Mode: calibration.ModeStepping, Rate: 1, PWM: 300}, true},
		{"ack", "ack\r\n", calibration.StatusLine{}, false},
		{"no terminator", "t10 128", calibration.StatusLine{}, false},
		{"lf only", "t10 128\n", calibration.StatusLine{}, false},
		{"unknown mode", "x10 128\r\n", calibration.StatusLine{}, false},
		{"upper case mode", "T10 128\r\n", calibration.StatusLine{}, false},
		{"missing rate", "t 128\r\n", calibration.StatusLine{}, false},
		{"missing pwm", "t10 \r\n", calibration.StatusLine{}, false},
		{"two spaces", "t10  128\r\n", calibration.StatusLine{}, false},
		{"trailing space", "t10 128 \r\n", calibration.StatusLine{}, false},
		{"signed", "t10 -1\r\n", calibration.StatusLine{}, false},
		{"extra field", "t10 128 3\r\n", calibration.StatusLine{}, false},
		{"garbage before", "xt10 128\r\n", calibration.StatusLine{}, false},
		{"trailing data", "t10 128\r\nt", calibration.StatusLine{}, false},
		{"empty", "\r\n", calibration.StatusLine{}, false},
		{"pwm overflow", "t1 99999999999999999999\r\n", calibration.StatusLine{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStatusLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseStatusLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseStatusLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}
