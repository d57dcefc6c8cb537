// Package rates holds the immutable rate collections a mount driver exposes:
// the supported tracking rates and the per-axis move rate ranges.
//
// Iteration state lives in a Cursor owned by the caller. Collections are never
// mutated after construction, so any number of goroutines may iterate the same
// collection at once, each with its own cursor, without locking.
package rates

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidCursor is returned by Current when the cursor is before the
	// first element or past the last one.
	ErrInvalidCursor = errors.New("invalid cursor position")
	// ErrIndexOutOfRange is returned by 1-based item access outside 1..Count.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// DriveRate identifies a tracking rate.
type DriveRate int

const (
	DriveSidereal DriveRate = iota
	DriveLunar
	DriveSolar
	DriveKing
)

func (d DriveRate) String() string {
	switch d {
	case DriveSidereal:
		return "sidereal"
	case DriveLunar:
		return "lunar"
	case DriveSolar:
		return "solar"
	case DriveKing:
		return "king"
	default:
		return fmt.Sprintf("DriveRate(%d)", int(d))
	}
}

func (d DriveRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// TrackingRates is the set of supported tracking rates. The controller
// firmware only tracks at sidereal rate, so it always holds exactly that.
type TrackingRates struct {
	rates []DriveRate
}

// NewTrackingRates returns the supported tracking rates.
func NewTrackingRates() *TrackingRates {
	return &TrackingRates{rates: []DriveRate{DriveSidereal}}
}

// Count returns the number of rates.
func (t *TrackingRates) Count() int {
	return len(t.rates)
}

// Item returns the rate at the 1-based index i.
func (t *TrackingRates) Item(i int) (DriveRate, error) {
	if i < 1 || i > len(t.rates) {
		return 0, fmt.Errorf("tracking rate %d of %d: %w", i, len(t.rates), ErrIndexOutOfRange)
	}
	return t.rates[i-1], nil
}

// All returns a copy of the rates in order.
func (t *TrackingRates) All() []DriveRate {
	return append([]DriveRate(nil), t.rates...)
}

// Begin returns a new cursor positioned before the first rate.
func (t *TrackingRates) Begin() *Cursor {
	return &Cursor{rates: t.rates, pos: -1}
}

// Cursor is an iteration position over a TrackingRates. A cursor belongs to
// whoever called Begin and is not safe for concurrent use; share the
// TrackingRates instead.
type Cursor struct {
	rates []DriveRate
	pos   int
}

// Next advances the cursor and reports whether it now points at a rate.
func (c *Cursor) Next() bool {
	if c.pos < len(c.rates) {
		c.pos++
	}
	return c.pos < len(c.rates)
}

// Current returns the rate at the cursor.
func (c *Cursor) Current() (DriveRate, error) {
	if c.pos < 0 || c.pos >= len(c.rates) {
		return 0, ErrInvalidCursor
	}
	return c.rates[c.pos], nil
}

// Reset moves the cursor back before the first rate.
func (c *Cursor) Reset() {
	c.pos = -1
}
