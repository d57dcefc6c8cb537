package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/calibration"
)

type Config interface {
	Port() string
	BaudRate() int
	Driver() string
	TrackingRate() float64
	Bounds() calibration.Bounds
	AckTimeout() time.Duration
	SessionTimeout() time.Duration
	Cron() string
	AllowNonRootAccess() bool
	Trace() bool

	SetPort(string)
	SetBaudRate(int)
	SetDriver(string)
	SetBounds(calibration.Bounds)
	SetCron(string)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
