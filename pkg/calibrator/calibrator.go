// Package calibrator drives the PWM calibration exchange with the tracking
// motor controller over a Transport.
//
// Calibrate has no upper bound on how long it runs: the controller decides
// when a sweep is over. By default it blocks until then, or until its context
// is done. Options.AckTimeout and Options.SessionTimeout turn a stalled device
// into ErrTimeout.
package calibrator

import (
	"context"
	"errors"
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/protocol"
	"github.com/mineq-project/mineq/pkg/transport"
)

// ErrTimeout is returned when a configured bound expires before the
// controller answered.
var ErrTimeout = errors.New("timed out waiting for motor controller")

// Rate multipliers for the boundary measurements.
const (
	LowFactor  = 0.5
	HighFactor = 1.5
)

// Options tunes a Client. The zero value waits forever and reports nothing.
type Options struct {
	// AckTimeout bounds the wait for the ack line of each command.
	AckTimeout time.Duration
	// SessionTimeout bounds a single Calibrate call, ack wait included.
	SessionTimeout time.Duration

	// OnStatus is called with every parsed status line.
	OnStatus func(rate float64, st calibration.StatusLine)
	// OnMalformed is called with every discarded line while polling.
	OnMalformed func(line string)
	// OnPhase is called by RunFullCalibration before each measurement.
	OnPhase func(phase calibration.Phase, rate float64)
}

// Client implements the calibration protocol. It owns its transport for the
// duration of each call and must not be used concurrently.
type Client struct {
	tr   transport.Transport
	opts Options
}

// New returns a Client that talks over tr.
func New(tr transport.Transport, opts Options) *Client {
	return &Client{tr: tr, opts: opts}
}

// Calibrate asks the controller to track targetRate and returns the PWM duty
// cycle it settled at: the pwm of the first status line that reports tracking,
// or stepping at 0 or 255.
func (c *Client) Calibrate(ctx context.Context, targetRate float64) (int, error) {
	if targetRate <= 0 || math.IsNaN(targetRate) || math.IsInf(targetRate, 0) {
		return 0, pkgerrors.Errorf("target rate must be a positive number, got %v", targetRate)
	}

	if c.opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SessionTimeout)
		defer cancel()
	}

	log := logrus.WithFields(logrus.Fields{
		"rate":      protocol.FormatRate(targetRate),
		"operation": "calibrate",
	})

	if err := c.tr.Transmit(protocol.TrackCommand(targetRate)); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to send track command")
	}
	log.Debug("track command sent, waiting for ack")

	ackCtx := ctx
	if c.opts.AckTimeout > 0 {
		var cancel context.CancelFunc
		ackCtx, cancel = context.WithTimeout(ctx, c.opts.AckTimeout)
		defer cancel()
	}

	m := &protocol.Machine{}
	for !m.Done() {
		readCtx := ctx
		if m.State() == protocol.StateAwaitAck {
			readCtx = ackCtx
		}

		line, err := c.tr.ReceiveUntil(readCtx, protocol.Terminator)
		if err != nil {
			return 0, receiveError(err, m.State())
		}

		switch m.Feed(line) {
		case protocol.EventAcked:
			log.Debug("command acknowledged, polling status")
		case protocol.EventMalformed:
			log.Tracef("discarding line %q", line)
			if c.opts.OnMalformed != nil {
				c.opts.OnMalformed(line)
			}
		case protocol.EventStatus, protocol.EventFinished:
			st, _ := m.Last()
			log.WithFields(logrus.Fields{
				"mode": st.Mode.String(),
				"pwm":  st.PWM,
			}).Trace("status")
			if c.opts.OnStatus != nil {
				c.opts.OnStatus(targetRate, st)
			}
		}
	}

	last, _ := m.Last()
	log.WithFields(logrus.Fields{
		"mode": last.Mode.String(),
		"pwm":  last.PWM,
	}).Info("calibration sweep finished")

	return m.PWM(), nil
}

func receiveError(err error, state protocol.State) error {
	stage := "terminal status"
	if state == protocol.StateAwaitAck {
		stage = "ack"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrapf(ErrTimeout, "waiting for %s", stage)
	}
	return pkgerrors.Wrapf(err, "failed while waiting for %s", stage)
}

// RunFullCalibration measures the PWM duty cycles at 0.5x and 1.5x nominal,
// then calibrates at nominal itself so the controller is left tracking at the
// nominal rate. The result of that last call is not part of Bounds.
func (c *Client) RunFullCalibration(ctx context.Context, nominal float64) (calibration.Bounds, error) {
	var b calibration.Bounds

	steps := []struct {
		phase  calibration.Phase
		factor float64
		dst    *int
	}{
		{calibration.PhaseLow, LowFactor, &b.Low},
		{calibration.PhaseHigh, HighFactor, &b.High},
		{calibration.PhaseNominal, 1, nil},
	}

	for _, s := range steps {
		rate := nominal * s.factor
		if c.opts.OnPhase != nil {
			c.opts.OnPhase(s.phase, rate)
		}
		pwm, err := c.Calibrate(ctx, rate)
		if err != nil {
			return calibration.Bounds{}, pkgerrors.Wrapf(err, "calibration failed in phase %s", s.phase)
		}
		if s.dst != nil {
			*s.dst = pwm
		}
	}

	logrus.WithFields(logrus.Fields{
		"low":  b.Low,
		"high": b.High,
	}).Info("full calibration finished")

	return b, nil
}

// openTransport is a test seam.
var openTransport = transport.Open

// Run opens the port described by cfg, performs a full calibration at nominal
// rate and closes the port on every path.
func Run(ctx context.Context, cfg transport.Config, nominal float64, opts Options) (calibration.Bounds, error) {
	tr, err := openTransport(cfg)
	if err != nil {
		return calibration.Bounds{}, err
	}
	defer func() {
		if cerr := tr.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("failed to close serial port")
		}
	}()

	return New(tr, opts).RunFullCalibration(ctx, nominal)
}
