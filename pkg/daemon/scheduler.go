package daemon

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	noticeLead       = time.Minute // how long before a run OnUpcoming fires
	preCheckRetries  = 30
	preCheckInterval = 10 * time.Second
	idleWait         = 10000 * time.Hour
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs Task at the times described by a cron expression.
type Scheduler struct {
	Task       func() error          // required
	PreCheck   func() error          // retried every preCheckInterval while failing
	OnUpcoming func(runAt time.Time) // fires noticeLead before a run
	OnError    func(err error)

	mu       sync.Mutex
	schedule cron.Schedule
	nextRun  time.Time
	running  bool
	stopCh   chan struct{}
	wakeCh   chan struct{}
}

func NewScheduler(task, preCheck func() error) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}
	return &Scheduler{
		Task:     task,
		PreCheck: preCheck,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Schedule replaces the current schedule.
func (s *Scheduler) Schedule(cronExpr string) error {
	sh, err := cronParser.Parse(cronExpr)
	if err != nil {
		return pkgerrors.Wrap(err, "invalid cron expression")
	}

	s.mu.Lock()
	s.schedule = sh
	s.nextRun = sh.Next(time.Now())
	s.mu.Unlock()

	s.wake()
	return nil
}

// Disable clears the schedule. The loop keeps running idle.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	s.schedule = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	s.wake()
}

// Postpone delays the next run by d. The postponed run must still come
// before the one after it.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return pkgerrors.New("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return pkgerrors.New("no active schedule to postpone")
	}
	following := s.schedule.Next(s.nextRun)
	pp := s.nextRun.Add(d)
	if !pp.Before(following) {
		s.mu.Unlock()
		return pkgerrors.Errorf("postpone duration too long, next run after that is at %s", following.Format(time.DateTime))
	}
	s.nextRun = pp
	s.mu.Unlock()

	s.wake()
	return nil
}

// Skip drops the next run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return pkgerrors.New("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	s.mu.Unlock()

	s.wake()
	return nil
}

// Status returns the next run time and whether a schedule is active.
func (s *Scheduler) Status() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, s.running && s.schedule != nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.loop(s.stopCh)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) snapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// advance moves nextRun past ran, unless it was changed meanwhile.
func (s *Scheduler) advance(ran time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(ran) {
		return
	}
	from := ran
	if now := time.Now(); now.After(from) {
		from = now
	}
	s.nextRun = s.schedule.Next(from)
}

func (s *Scheduler) reportError(err error) {
	logrus.WithError(err).Warn("scheduled calibration")
	if s.OnError != nil {
		go s.OnError(err)
	}
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	logrus.Debug("scheduler started")
	defer logrus.Debug("scheduler stopped")

	var (
		notified time.Time
		retryAt  time.Time
		retries  int
	)

	for {
		next := s.snapshot()

		var wait time.Duration
		notify := false
		switch {
		case next.IsZero():
			wait = idleWait
		case !retryAt.IsZero():
			wait = time.Until(retryAt)
		case s.OnUpcoming != nil && !notified.Equal(next):
			wait = time.Until(next) - noticeLead
			notify = true
		default:
			wait = time.Until(next)
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-s.wakeCh:
			timer.Stop()
			retryAt, retries = time.Time{}, 0
			continue
		case <-timer.C:
		}

		if next.IsZero() {
			continue
		}
		if notify {
			notified = next
			logrus.WithField("runAt", next.Format(time.DateTime)).Debug("upcoming scheduled calibration")
			go s.OnUpcoming(next)
			continue
		}

		if s.PreCheck != nil {
			if err := s.PreCheck(); err != nil {
				if retries == 0 {
					s.reportError(pkgerrors.Wrap(err, "precheck failed"))
				}
				retries++
				if retries <= preCheckRetries {
					logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", retries, preCheckRetries, err, preCheckInterval)
					retryAt = time.Now().Add(preCheckInterval)
					continue
				}
				logrus.WithField("runAt", next.Format(time.DateTime)).Warn("giving up scheduled calibration")
				retryAt, retries = time.Time{}, 0
				s.advance(next)
				continue
			}
		}

		retryAt, retries = time.Time{}, 0
		s.advance(next)
		logrus.WithField("runAt", next.Format(time.DateTime)).Info("running scheduled calibration")
		go func() {
			if err := s.Task(); err != nil {
				s.reportError(pkgerrors.Wrap(err, "task failed"))
			}
		}()
	}
}
