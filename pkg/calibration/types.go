package calibration

import (
	"encoding/json"
	"fmt"
	"time"
)

// SiderealRate is the nominal tracking rate in the motor controller's native
// rate units.
const SiderealRate = 159.115175711434

// PWM duty cycle range reported by the controller.
const (
	MinPWM = 0
	MaxPWM = 255
)

// Mode is the motor state reported by the controller.
type Mode byte

const (
	ModeOff      Mode = 'o'
	ModeTracking Mode = 't'
	ModeStepping Mode = 's'
)

// Valid reports whether m is one of the modes the controller can send.
func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeTracking, ModeStepping:
		return true
	default:
		return false
	}
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeTracking:
		return "tracking"
	case ModeStepping:
		return "stepping"
	default:
		return fmt.Sprintf("unknown(%q)", byte(m))
	}
}

// MarshalJSON encodes m as its wire character, e.g. "t".
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(string([]byte{byte(m)}))
}

func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s) != 1 {
		return fmt.Errorf("invalid mode %q", s)
	}
	*m = Mode(s[0])
	return nil
}

// StatusLine is a single `<mode><rate> <pwm>` report.
type StatusLine struct {
	Mode Mode   `json:"mode"`
	Rate uint64 `json:"rate"`
	PWM  int    `json:"pwm"`
}

// Saturated reports whether the duty cycle sits at one of its extremes.
func (s StatusLine) Saturated() bool {
	return s.PWM == MinPWM || s.PWM == MaxPWM
}

// Terminal reports whether this line ends a calibration sweep: the device
// either tracks the requested rate, or it is stepping and has run into a duty
// cycle extreme without reaching it.
func (s StatusLine) Terminal() bool {
	return s.Mode == ModeTracking || (s.Mode == ModeStepping && s.Saturated())
}

// Bounds holds the PWM values measured at 0.5x (Low) and 1.5x (High) the
// nominal tracking rate.
type Bounds struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// Validate checks both values are inside the duty cycle range.
func (b Bounds) Validate() error {
	if b.Low < MinPWM || b.Low > MaxPWM {
		return fmt.Errorf("low pwm must be between %d and %d, got %d", MinPWM, MaxPWM, b.Low)
	}
	if b.High < MinPWM || b.High > MaxPWM {
		return fmt.Errorf("high pwm must be between %d and %d, got %d", MinPWM, MaxPWM, b.High)
	}
	return nil
}

// Phase defines the steps of a full calibration run.
type Phase string

const (
	PhaseIdle    Phase = "Idle"
	PhaseLow     Phase = "MeasureLow"
	PhaseHigh    Phase = "MeasureHigh"
	PhaseNominal Phase = "SettleNominal"
	PhaseError   Phase = "Error"
)

// Action defines user actions for calibration.
type Action string

const (
	ActionStart            Action = "Start"
	ActionCancel           Action = "Cancel"
	ActionFinish           Action = "Finish"
	ActionSchedule         Action = "Schedule"
	ActionDisableSchedule  Action = "DisableSchedule"
	ActionSchedulePostpone Action = "SchedulePostpone"
	ActionScheduleSkip     Action = "ScheduleSkip"
)

// Status is a synthesized view model exposed via the HTTP API. Bounds holds
// the values currently stored in the config, LastStatus the most recent
// status line received during a run.
type Status struct {
	Phase       Phase       `json:"phase"`
	Port        string      `json:"port"`
	TargetRate  float64     `json:"targetRate,omitempty"`
	LastStatus  *StatusLine `json:"lastStatus,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
	Bounds      Bounds      `json:"bounds"`
	CanCancel   bool        `json:"canCancel"`
	Message     string      `json:"message"`
	ScheduledAt time.Time   `json:"scheduledAt,omitempty"`
}

// Running reports whether a calibration run is in flight.
func (p Phase) Running() bool {
	return p == PhaseLow || p == PhaseHigh || p == PhaseNominal
}
