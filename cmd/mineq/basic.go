package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/rates"
	"github.com/mineq-project/mineq/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
			if v, err := apiClient.GetVersion(); err == nil && v != version.Version {
				cmd.Printf("daemon: %s\n", v)
			}
		},
	}
}

func NewBoundsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "bounds [low high]",
		Short:   "Show or set the PWM bounds",
		GroupID: gBasic,
		Long: `Show or set the PWM duty cycles used for half and one-and-a-half sidereal rate.

Without arguments the stored bounds are printed. With two arguments (0-255 each)
they are stored without running a calibration.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or exactly two (low high), got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				b, err := apiClient.GetBounds()
				if err != nil {
					return err
				}
				cmd.Printf("PWM low: %s\n", bold("%d", b.Low))
				cmd.Printf("PWM high: %s\n", bold("%d", b.High))
				return nil
			}

			low, err := parseIntArg(args[0], "low")
			if err != nil {
				return err
			}
			high, err := parseIntArg(args[1], "high")
			if err != nil {
				return err
			}
			b := calibration.Bounds{Low: low, High: high}
			if err := b.Validate(); err != nil {
				return err
			}

			ret, err := apiClient.SetBounds(b)
			if err != nil {
				return fmt.Errorf("failed to set bounds: %w", err)
			}
			logResponse(ret)
			return nil
		},
	}
}

func NewPortCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "port [name]",
		Short:   "Show or set the serial port of the motor controller",
		GroupID: gBasic,
		Example: `  mineq port /dev/ttyUSB0
  mineq port ""   (clear)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				p, err := apiClient.GetPort()
				if err != nil {
					return err
				}
				cmd.Printf("Serial port: %s\n", orNone(p))
				return nil
			}

			ret, err := apiClient.SetPort(args[0])
			if err != nil {
				return fmt.Errorf("failed to set port: %w", err)
			}
			logResponse(ret)
			return nil
		},
	}
}

func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ports",
		Short:   "List available serial ports",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := apiClient.ListPorts()
			if err != nil {
				return err
			}
			current, _ := apiClient.GetPort()
			if len(ports) == 0 {
				cmd.Println("No serial ports found.")
				return nil
			}
			for _, p := range ports {
				marker := " "
				if p == current {
					marker = "*"
				}
				cmd.Printf("%s %s\n", marker, p)
			}
			return nil
		},
	}
}

func NewRatesCommand() *cobra.Command {
	var axis string

	cmd := &cobra.Command{
		Use:     "rates",
		Short:   "List supported tracking rates",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if axis != "" {
				a, err := rates.ParseAxis(axis)
				if err != nil {
					return err
				}
				rs, err := apiClient.GetAxisRates(a)
				if err != nil {
					return err
				}
				if len(rs) == 0 {
					cmd.Printf("The %s axis cannot be moved directly.\n", a)
					return nil
				}
				for i, r := range rs {
					cmd.Printf("%d: %g - %g deg/s\n", i+1, r.Minimum, r.Maximum)
				}
				return nil
			}

			trs, err := apiClient.GetTrackingRates()
			if err != nil {
				return err
			}
			for _, r := range trs {
				cmd.Printf("%d: %s\n", r.Index, bold("%s", r.Rate))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&axis, "axis", "", "list move rates of an axis (primary, secondary, tertiary) instead")
	return cmd
}
