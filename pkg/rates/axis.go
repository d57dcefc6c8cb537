package rates

import "fmt"

// Axis identifies a mount axis.
type Axis int

const (
	AxisPrimary Axis = iota
	AxisSecondary
	AxisTertiary
)

// ParseAxis accepts the axis name or its number.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "primary", "0":
		return AxisPrimary, nil
	case "secondary", "1":
		return AxisSecondary, nil
	case "tertiary", "2":
		return AxisTertiary, nil
	default:
		return 0, fmt.Errorf("unknown axis %q", s)
	}
}

func (a Axis) String() string {
	switch a {
	case AxisPrimary:
		return "primary"
	case AxisSecondary:
		return "secondary"
	case AxisTertiary:
		return "tertiary"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Rate is a range of move rates in degrees per second.
type Rate struct {
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
}

// AxisRates is the collection of move rate ranges supported on one axis.
type AxisRates struct {
	axis  Axis
	rates []Rate
}

// NewAxisRates returns the move rates for axis. Moving an axis directly is
// not supported by the controller, so every axis reports no rates.
func NewAxisRates(axis Axis) *AxisRates {
	return &AxisRates{axis: axis, rates: []Rate{}}
}

func (a *AxisRates) Axis() Axis { return a.axis }

func (a *AxisRates) Count() int { return len(a.rates) }

// Item returns the range at the 1-based index i.
func (a *AxisRates) Item(i int) (Rate, error) {
	if i < 1 || i > len(a.rates) {
		return Rate{}, fmt.Errorf("%s axis rate %d of %d: %w", a.axis, i, len(a.rates), ErrIndexOutOfRange)
	}
	return a.rates[i-1], nil
}

// All returns a copy of the ranges.
func (a *AxisRates) All() []Rate {
	return append([]Rate{}, a.rates...)
}
