package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage automatic recalibration schedule",
		Long: `Manage automatic recalibration schedule.

The schedule command can be used in multiple ways:
  mineq schedule 'minute hour day month weekday' Set schedule with cron expression
  mineq schedule disable                         Disable the schedule
  mineq schedule postpone [duration]             Postpone next run
  mineq schedule skip                            Skip next run
  mineq schedule show                            Show current schedule

An optional leading seconds field and descriptors such as '@daily' or
'@every 12h' are accepted too. A scheduled run is skipped when no serial port
is configured or a calibration is already running.`,
		Example: `  mineq schedule '0 18 * * *'  (At 18:00 every day, before observing)
  mineq schedule '0 12 * * 6'  (At 12:00 on Saturday)
  mineq schedule '@every 168h' (Once a week)`,
		GroupID: gCalibration,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the recalibration schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleDisable(cmd)
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled calibration run",
		Example: `  mineq schedule postpone      (Postpone by 1 hour)
  mineq schedule postpone 90m  (Postpone by 90 minutes)`,
		Long: `Postpone the next scheduled calibration run by a specified duration.
If no duration is provided, defaults to 1 hour. The run cannot be moved past
the one following it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			return runSchedulePostpone(cmd, d)
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled calibration run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleSkip(cmd)
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current recalibration schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func printRuns(cmd *cobra.Command, runs []time.Time) {
	for _, run := range runs {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty, use 'mineq schedule disable' instead")
	}
	nextRuns, err := apiClient.Schedule(cronExpr)
	if err != nil {
		return err
	}
	cmd.Printf("Recalibration scheduled. Next %d run(s):\n", len(nextRuns))
	printRuns(cmd, nextRuns)
	return nil
}

func runScheduleDisable(cmd *cobra.Command) error {
	if _, err := apiClient.Schedule(""); err != nil {
		return err
	}
	cmd.Println("Recalibration schedule disabled.")
	return nil
}

func runSchedulePostpone(cmd *cobra.Command, d time.Duration) error {
	if _, err := apiClient.PostponeSchedule(d); err != nil {
		return err
	}
	cmd.Printf("Next run postponed by %s.\n", d)
	return runScheduleShow(cmd)
}

func runScheduleSkip(cmd *cobra.Command) error {
	if _, err := apiClient.SkipSchedule(); err != nil {
		return err
	}
	cmd.Println("Next scheduled run skipped.")
	return runScheduleShow(cmd)
}

func runScheduleShow(cmd *cobra.Command) error {
	conf, err := apiClient.GetConfig()
	if err != nil {
		return err
	}
	if conf.Cron == nil || *conf.Cron == "" {
		cmd.Println("Recalibration schedule is not set.")
		return nil
	}

	st, err := apiClient.GetCalibrationStatus()
	if err != nil {
		return err
	}
	cmd.Printf("Schedule: %s\n", bold("%s", *conf.Cron))
	if st.ScheduledAt.IsZero() {
		cmd.Println("No upcoming run.")
		return nil
	}
	cmd.Printf("Next run: %s (in %s)\n", bold("%s", st.ScheduledAt.Local().Format(time.DateTime)),
		time.Until(st.ScheduledAt).Round(time.Second))
	return nil
}
