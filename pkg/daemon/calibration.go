package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/calibrator"
	"github.com/mineq-project/mineq/pkg/events"
	"github.com/mineq-project/mineq/pkg/transport"
)

// runCalibration is a test seam.
var runCalibration = calibrator.Run

// cancelWait is how long cancelCalibration waits for the session goroutine
// to release the serial port.
var cancelWait = 5 * time.Second

var (
	calibrationMu     = &sync.Mutex{}
	calibrationState  = &calibration.Status{Phase: calibration.PhaseIdle}
	calibrationCancel context.CancelFunc
	calibrationDone   chan struct{}
)

var ErrCalibrationInProgress = &calibrationError{"calibration already in progress"}
var ErrCalibrationNotRunning = &calibrationError{"calibration not running"}
var ErrNoPort = &calibrationError{"no serial port configured"}

type calibrationError struct{ msg string }

func (e *calibrationError) Error() string { return e.msg }

// startCalibration launches a full calibration in the background. trigger is
// recorded in the logs ("api", "schedule").
func startCalibration(trigger string) error {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	if calibrationState.Phase.Running() {
		return ErrCalibrationInProgress
	}

	port := conf.Port()
	if port == "" {
		return ErrNoPort
	}

	tcfg := transport.Config{
		Port:     port,
		BaudRate: conf.BaudRate(),
		Driver:   conf.Driver(),
	}
	nominal := conf.TrackingRate()
	opts := calibrator.Options{
		AckTimeout:     conf.AckTimeout(),
		SessionTimeout: conf.SessionTimeout(),
		OnPhase:        onCalibrationPhase,
		OnStatus:       onCalibrationStatus,
		OnMalformed:    func(string) { malformedLinesTotal.Inc() },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	calibrationCancel = cancel
	calibrationDone = done

	calibrationState = &calibration.Status{
		Phase:      calibration.PhaseLow,
		Port:       port,
		TargetRate: nominal * calibrator.LowFactor,
		StartedAt:  time.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"trigger": trigger,
		"port":    port,
		"driver":  tcfg.Driver,
		"nominal": nominal,
	}).Info("starting calibration")

	hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
		Action:  string(calibration.ActionStart),
		Message: fmt.Sprintf("Start calibration on %s (%s)", port, trigger),
		Ts:      time.Now().Unix(),
	})

	go func() {
		defer close(done)
		defer cancel()
		b, err := runCalibration(ctx, tcfg, nominal, opts)
		finishCalibration(b, err)
	}()

	return nil
}

// setPhaseLocked moves the state to phase and publishes the transition.
// calibrationMu must be held.
func setPhaseLocked(phase calibration.Phase, rate float64, msg string) {
	prev := calibrationState.Phase
	calibrationState.Phase = phase
	if rate > 0 {
		calibrationState.TargetRate = rate
	}
	calibrationState.Message = msg
	if prev == phase {
		return
	}

	hub.Publish(events.CalibrationPhase, events.CalibrationPhaseEvent{
		From:    string(prev),
		To:      string(phase),
		Rate:    calibrationState.TargetRate,
		Message: msg,
		Ts:      time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"from": prev,
		"to":   phase,
	}).Debug("calibration phase changed")
}

func onCalibrationPhase(phase calibration.Phase, rate float64) {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()
	setPhaseLocked(phase, rate, fmt.Sprintf("Calibrating at %.6g steps/s", rate))
}

func onCalibrationStatus(rate float64, st calibration.StatusLine) {
	statusLinesTotal.WithLabelValues(st.Mode.String()).Inc()
	lastPWM.Set(float64(st.PWM))

	calibrationMu.Lock()
	line := st
	calibrationState.LastStatus = &line
	calibrationMu.Unlock()

	hub.Publish(events.CalibrationStatus, events.CalibrationStatusEvent{
		Rate: rate,
		Mode: st.Mode.String(),
		PWM:  st.PWM,
		Ts:   time.Now().Unix(),
	})
}

// finishCalibration records the outcome of a session and persists the
// bounds of a successful one.
func finishCalibration(b calibration.Bounds, err error) {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	calibrationCancel = nil
	calibrationState.FinishedAt = time.Now()
	elapsed := calibrationState.FinishedAt.Sub(calibrationState.StartedAt)
	calibrationDuration.Observe(elapsed.Seconds())

	if err == nil {
		err = b.Validate()
	}

	switch {
	case errors.Is(err, context.Canceled):
		calibrationsTotal.WithLabelValues("canceled").Inc()
		logrus.Info("calibration canceled")
		setPhaseLocked(calibration.PhaseIdle, 0, "Calibration canceled")
		return
	case err != nil:
		calibrationsTotal.WithLabelValues("error").Inc()
		logrus.WithError(err).Error("calibration failed")
		setPhaseLocked(calibration.PhaseError, 0, err.Error())
		return
	}

	conf.SetBounds(b)
	if err := conf.Save(); err != nil {
		calibrationsTotal.WithLabelValues("error").Inc()
		logrus.WithError(err).Error("failed to save calibrated bounds")
		setPhaseLocked(calibration.PhaseError, 0, fmt.Sprintf("failed to save bounds: %v", err))
		return
	}

	calibrationsTotal.WithLabelValues("success").Inc()
	pwmBound.WithLabelValues("low").Set(float64(b.Low))
	pwmBound.WithLabelValues("high").Set(float64(b.High))

	logrus.WithFields(logrus.Fields{
		"low":     b.Low,
		"high":    b.High,
		"elapsed": formatDuration(elapsed),
	}).Info("calibration finished, bounds saved")

	setPhaseLocked(calibration.PhaseIdle, 0, fmt.Sprintf("Calibrated pwm %d/%d in %s", b.Low, b.High, formatDuration(elapsed)))
	hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
		Action:  string(calibration.ActionFinish),
		Message: calibrationState.Message,
		Ts:      time.Now().Unix(),
	})
}

// cancelCalibration cancels the in-flight session and waits until the serial
// port has been released.
func cancelCalibration() error {
	calibrationMu.Lock()
	if !calibrationState.Phase.Running() || calibrationCancel == nil {
		calibrationMu.Unlock()
		return ErrCalibrationNotRunning
	}
	phase := calibrationState.Phase
	calibrationCancel()
	done := calibrationDone
	calibrationMu.Unlock()

	hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
		Action:  string(calibration.ActionCancel),
		Message: fmt.Sprintf("Calibration canceled at phase %s", phase),
		Ts:      time.Now().Unix(),
	})

	select {
	case <-done:
	case <-time.After(cancelWait):
		logrus.Warn("calibration did not stop in time after cancel")
	}
	return nil
}

// stopCalibration cancels any session without reporting an error. Used on
// shutdown.
func stopCalibration() {
	if err := cancelCalibration(); err != nil && !errors.Is(err, ErrCalibrationNotRunning) {
		logrus.WithError(err).Warn("failed to stop calibration")
	}
}

func getCalibrationStatus() *calibration.Status {
	calibrationMu.Lock()
	st := *calibrationState
	calibrationMu.Unlock()

	if st.LastStatus != nil {
		line := *st.LastStatus
		st.LastStatus = &line
	}
	if st.Port == "" {
		st.Port = conf.Port()
	}
	st.Bounds = conf.Bounds()
	st.CanCancel = st.Phase.Running()

	if scheduler != nil {
		next, running := scheduler.Status()
		if running {
			st.ScheduledAt = next
		}
	}

	return &st
}

func calibrationRunning() bool {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()
	return calibrationState.Phase.Running()
}
