package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/calibrator"
	"github.com/mineq-project/mineq/pkg/config"
	"github.com/mineq-project/mineq/pkg/events"
	"github.com/mineq-project/mineq/pkg/transport"
)

// runStandalone is a test seam.
var runStandalone = calibrator.Run

type calibrateOptions struct {
	port           string
	baudRate       int
	driver         string
	rate           float64
	ackTimeout     time.Duration
	sessionTimeout time.Duration
	save           bool
}

// loadLocalConfig reads the config file for defaults. A missing or unreadable
// file falls back to the built-in defaults.
func loadLocalConfig() *config.File {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.WithError(err).Warn("failed to load config, using defaults")
		return config.NewFileFromConfig(nil, configPath)
	}
	return conf
}

func NewCalibrateCommand() *cobra.Command {
	o := calibrateOptions{}

	cmd := &cobra.Command{
		Use:     "calibrate",
		Short:   "Calibrate the tracking motor without the daemon",
		GroupID: gCalibration,
		Long: `Open the serial port directly and run a full calibration.

The motor is driven at 0.5x and 1.5x the nominal rate and the PWM duty cycle it
settles at is recorded for each, then it is put back on the nominal rate.
Flags default to the values in the config file. Do not run this while the
daemon is calibrating on the same port.`,
		Example: `  mineq calibrate --port /dev/ttyUSB0
  mineq calibrate --port /dev/ttyUSB0 --timeout 2m --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := loadLocalConfig()
			flags := cmd.Flags()
			if !flags.Changed("port") {
				o.port = conf.Port()
			}
			if !flags.Changed("baud") {
				o.baudRate = conf.BaudRate()
			}
			if !flags.Changed("driver") {
				o.driver = conf.Driver()
			}
			if !flags.Changed("rate") {
				o.rate = conf.TrackingRate()
			}
			if !flags.Changed("ack-timeout") {
				o.ackTimeout = conf.AckTimeout()
			}
			if !flags.Changed("timeout") {
				o.sessionTimeout = conf.SessionTimeout()
			}
			if o.port == "" {
				return fmt.Errorf("no serial port given, use --port or 'mineq port <name>'")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := runCalibrate(ctx, cmd, o)
			if err != nil {
				return err
			}

			cmd.Printf("PWM low: %s\n", bold("%d", b.Low))
			cmd.Printf("PWM high: %s\n", bold("%d", b.High))

			if !o.save {
				return nil
			}
			if err := b.Validate(); err != nil {
				return fmt.Errorf("refusing to save: %w", err)
			}
			conf.SetBounds(b)
			if o.port != conf.Port() {
				conf.SetPort(o.port)
			}
			if err := conf.Save(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			cmd.Printf("Saved to %s. Send SIGHUP to a running daemon to pick it up.\n", configPath)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.port, "port", "p", "", "serial port of the motor controller")
	f.IntVar(&o.baudRate, "baud", transport.DefaultBaudRate, "baud rate")
	f.StringVar(&o.driver, "driver", transport.DriverBugst, "serial driver (bugst, tarm)")
	f.Float64Var(&o.rate, "rate", calibration.SiderealRate, "nominal tracking rate")
	f.DurationVar(&o.ackTimeout, "ack-timeout", 0, "max wait for the controller to acknowledge a command (0 waits forever)")
	f.DurationVar(&o.sessionTimeout, "timeout", 0, "max duration of a single measurement (0 waits forever)")
	f.BoolVar(&o.save, "save", false, "store the measured bounds in the config file")

	return cmd
}

func runCalibrate(ctx context.Context, cmd *cobra.Command, o calibrateOptions) (calibration.Bounds, error) {
	faint := color.New(color.Faint)
	cfg := transport.Config{
		Port:     o.port,
		BaudRate: o.baudRate,
		Driver:   o.driver,
	}
	opts := calibrator.Options{
		AckTimeout:     o.ackTimeout,
		SessionTimeout: o.sessionTimeout,
		OnPhase: func(phase calibration.Phase, rate float64) {
			cmd.Printf("%s at rate %s\n", bold("%s", phase), bold("%g", rate))
		},
		OnStatus: func(_ float64, st calibration.StatusLine) {
			cmd.Println(faint.Sprintf("  %s rate=%d pwm=%d", st.Mode, st.Rate, st.PWM))
		},
		OnMalformed: func(line string) {
			logrus.WithField("line", line).Debug("discarded malformed line")
		},
	}

	start := time.Now()
	b, err := runStandalone(ctx, cfg, o.rate, opts)
	switch {
	case errors.Is(err, context.Canceled):
		return b, fmt.Errorf("calibration interrupted")
	case errors.Is(err, calibrator.ErrTimeout):
		return b, fmt.Errorf("%w, check the port and that the controller is powered", err)
	case err != nil:
		return b, err
	}
	cmd.Printf("Calibrated in %s.\n", time.Since(start).Round(time.Second))
	return b, nil
}

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Aliases: []string{"cali"},
		Short:   "Manage calibration runs of the daemon",
		Long:    "Start, monitor, and cancel calibration runs performed by the daemon on its configured serial port.",
		GroupID: gCalibration,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a calibration on the configured serial port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.StartCalibration(); err != nil {
				return fmt.Errorf("failed to start calibration: %w", err)
			}
			cmd.Println("Calibration started. Follow it with 'mineq calibration watch'.")
			return nil
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running calibration, keeping the stored bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.CancelCalibration(); err != nil {
				return fmt.Errorf("failed to cancel calibration: %w", err)
			}
			cmd.Println("Calibration canceled.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show current calibration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetCalibrationStatus()
			if err != nil {
				return fmt.Errorf("failed to fetch calibration status: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream calibration progress until the run ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return apiClient.Watch(ctx, func(ev events.Event) bool {
				return printEvent(cmd, ev)
			})
		},
	}

	cmd.AddCommand(startCmd, cancelCmd, statusCmd, watchCmd)
	return cmd
}

// printEvent prints ev and reports whether watching should go on.
func printEvent(cmd *cobra.Command, ev events.Event) bool {
	switch ev.Name {
	case events.CalibrationPhase:
		p, err := events.DecodeAs[events.CalibrationPhaseEvent](ev)
		if err != nil {
			logrus.WithError(err).Warn("failed to decode event")
			return true
		}
		line := fmt.Sprintf("%s -> %s", p.From, bold("%s", p.To))
		if p.Rate > 0 {
			line += fmt.Sprintf(" at rate %g", p.Rate)
		}
		if p.Message != "" {
			line += ": " + p.Message
		}
		cmd.Println(line)
		to := calibration.Phase(p.To)
		return to.Running()
	case events.CalibrationStatus:
		s, err := events.DecodeAs[events.CalibrationStatusEvent](ev)
		if err != nil {
			logrus.WithError(err).Warn("failed to decode event")
			return true
		}
		cmd.Println(color.New(color.Faint).Sprintf("  %s rate=%g pwm=%d", s.Mode, s.Rate, s.PWM))
	case events.CalibrationAction:
		a, err := events.DecodeAs[events.CalibrationActionEvent](ev)
		if err != nil {
			logrus.WithError(err).Warn("failed to decode event")
			return true
		}
		logrus.WithField("message", a.Message).Infof("action: %s", a.Action)
	}
	return true
}

func printCalibrationStatus(cmd *cobra.Command, st *calibration.Status) {
	phase := string(st.Phase)
	switch {
	case st.Phase == calibration.PhaseError:
		phase = color.RedString(phase)
	case st.Phase.Running():
		phase = color.YellowString(phase)
	}
	cmd.Printf("  Phase: %s\n", bold("%s", phase))
	if st.Phase.Running() && st.TargetRate > 0 {
		cmd.Printf("  Target rate: %s\n", bold("%g", st.TargetRate))
	}
	if st.LastStatus != nil {
		cmd.Printf("  Last status: %s\n", bold("%s pwm=%d", st.LastStatus.Mode, st.LastStatus.PWM))
	}
	if !st.StartedAt.IsZero() {
		cmd.Printf("  Started: %s (%s ago)\n", st.StartedAt.Local().Format(time.DateTime), time.Since(st.StartedAt).Round(time.Second))
	}
	if !st.FinishedAt.IsZero() && !st.Phase.Running() {
		cmd.Printf("  Finished: %s\n", st.FinishedAt.Local().Format(time.DateTime))
	}
	cmd.Printf("  Can cancel: %s\n", bool2Text(st.CanCancel))
	if st.Message != "" {
		cmd.Printf("  Message: %s\n", st.Message)
	}
	if !st.ScheduledAt.IsZero() {
		cmd.Printf("  Next scheduled run: %s\n", st.ScheduledAt.Local().Format(time.DateTime))
	}
}
