package daemon

import (
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/events"
)

var scheduler *Scheduler

func newCalibrationScheduler() *Scheduler {
	s := NewScheduler(
		func() error {
			return startCalibration("schedule")
		},
		func() error {
			if conf.Port() == "" {
				return ErrNoPort
			}
			if calibrationRunning() {
				return ErrCalibrationInProgress
			}
			return nil
		},
	)
	s.OnUpcoming = func(runAt time.Time) {
		hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
			Action:  string(calibration.ActionSchedule),
			Message: fmt.Sprintf("Calibration will start at %s", runAt.Format("Jan _2 15:04")),
			Ts:      time.Now().Unix(),
		})
	}
	s.OnError = func(err error) {
		hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
			Action:  string(calibration.ActionSchedule),
			Message: err.Error(),
			Ts:      time.Now().Unix(),
		})
	}
	return s
}

// schedule sets the cron expression for periodic recalibration and returns
// the next run times. An empty expression disables it.
func schedule(cronExpr string) ([]time.Time, error) {
	if cronExpr == "" {
		if conf.Cron() == "" {
			return nil, nil
		}

		conf.SetCron("")
		if err := conf.Save(); err != nil {
			logrus.WithError(err).Error("failed to save config")
			return nil, pkgerrors.Wrap(err, "failed to save config")
		}
		scheduler.Disable()
		hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
			Action:  string(calibration.ActionDisableSchedule),
			Message: "Calibration schedule disabled",
			Ts:      time.Now().Unix(),
		})
		return nil, nil
	}

	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid cron expression")
	}

	conf.SetCron(cronExpr)
	if err := conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to save config")
		return nil, pkgerrors.Wrap(err, "failed to save config")
	}

	if err := scheduler.Schedule(cronExpr); err != nil {
		return nil, err
	}

	nextRuns := make([]time.Time, 0, 3)
	now := time.Now()
	for i := 0; i < 3; i++ {
		next := sched.Next(now)
		nextRuns = append(nextRuns, next)
		now = next
	}

	hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
		Action:  string(calibration.ActionSchedule),
		Message: fmt.Sprintf("Calibration scheduled at %s", nextRuns[0].Format("Jan _2 15:04")),
		Ts:      time.Now().Unix(),
	})

	return nextRuns, nil
}

func postpone(d time.Duration) error {
	if err := scheduler.Postpone(d); err != nil {
		return err
	}

	hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
		Action:  string(calibration.ActionSchedulePostpone),
		Message: fmt.Sprintf("Calibration postponed for %s", d),
		Ts:      time.Now().Unix(),
	})
	return nil
}

func skipNextSchedule() error {
	if err := scheduler.Skip(); err != nil {
		return err
	}

	hub.Publish(events.CalibrationAction, events.CalibrationActionEvent{
		Action:  string(calibration.ActionScheduleSkip),
		Message: "Next scheduled calibration skipped",
		Ts:      time.Now().Unix(),
	})
	return nil
}
