// Package protocol implements the line-oriented text protocol spoken by the
// tracking motor controller:
//
//	client -> device: t <rate>\r\n
//	device -> client: ack\r\n
//	device -> client: <mode><rate> <pwm>\r\n   (repeated)
//
// It has no I/O of its own. Machine consumes received lines one at a time and
// reports when a calibration sweep has finished.
package protocol

import (
	"strconv"
	"strings"

	"github.com/mineq-project/mineq/pkg/calibration"
)

const (
	// Terminator ends every line in both directions.
	Terminator = "\r\n"
	// AckLine is sent by the device once it accepted a command.
	AckLine = "ack" + Terminator
)

// FormatRate renders a rate as a plain decimal with as many digits as needed
// to reproduce the float64 exactly. Exponent notation is never used.
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

// TrackCommand builds the command that sets the target tracking rate.
func TrackCommand(rate float64) string {
	return "t " + FormatRate(rate) + Terminator
}

// ParseStatusLine parses a full received line, terminator included, of the
// form `<mode><rate> <pwm>\r\n`. ok is false for anything else, including
// numbers too large to represent.
func ParseStatusLine(line string) (st calibration.StatusLine, ok bool) {
	body, found := strings.CutSuffix(line, Terminator)
	if !found || len(body) < 4 {
		return st, false
	}

	mode := calibration.Mode(body[0])
	if !mode.Valid() {
		return st, false
	}

	rateText, pwmText, found := strings.Cut(body[1:], " ")
	if !found || !isDigits(rateText) || !isDigits(pwmText) {
		return st, false
	}

	rate, err := strconv.ParseUint(rateText, 10, 64)
	if err != nil {
		return st, false
	}
	pwm, err := strconv.ParseUint(pwmText, 10, 31)
	if err != nil {
		return st, false
	}

	return calibration.StatusLine{Mode: mode, Rate: rate, PWM: int(pwm)}, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
