package protocol

import (
	"github.com/mineq-project/mineq/pkg/calibration"
)

// State is the position of a Machine in the calibration exchange.
type State int

const (
	// StateAwaitAck discards lines until the device acknowledges the command.
	StateAwaitAck State = iota
	// StatePolling reads status lines until one is terminal.
	StatePolling
	// StateDone means a terminal status line was received.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitAck:
		return "AwaitAck"
	case StatePolling:
		return "Polling"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Event describes what a single line did to the Machine.
type Event int

const (
	// EventIgnored is a line that did not move the machine forward.
	EventIgnored Event = iota
	// EventAcked is the acknowledgement line.
	EventAcked
	// EventStatus is a parsed, non-terminal status line.
	EventStatus
	// EventMalformed is a line received while polling that is not a status line.
	EventMalformed
	// EventFinished is the terminal status line.
	EventFinished
)

// Machine tracks one calibration exchange after the track command was sent.
// The zero value is ready to use.
type Machine struct {
	state State
	last  calibration.StatusLine
	seen  bool
}

// Feed consumes one received line, terminator included.
func (m *Machine) Feed(line string) Event {
	switch m.state {
	case StateAwaitAck:
		if line != AckLine {
			return EventIgnored
		}
		m.state = StatePolling
		return EventAcked
	case StatePolling:
		st, ok := ParseStatusLine(line)
		if !ok {
			return EventMalformed
		}
		m.last = st
		m.seen = true
		if st.Terminal() {
			m.state = StateDone
			return EventFinished
		}
		return EventStatus
	default:
		return EventIgnored
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Done reports whether the sweep finished.
func (m *Machine) Done() bool { return m.state == StateDone }

// Last returns the most recent status line, if any was parsed.
func (m *Machine) Last() (calibration.StatusLine, bool) { return m.last, m.seen }

// PWM returns the duty cycle of the most recent status line.
func (m *Machine) PWM() int { return m.last.PWM }
