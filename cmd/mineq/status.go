package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/calibrator"
	"github.com/mineq-project/mineq/pkg/config"
)

type statusData struct {
	config      *config.RawFileConfig
	calibration *calibration.Status
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	st, err := apiClient.GetCalibrationStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get calibration status: %w", err)
	}

	return &statusData{config: conf, calibration: st}, nil
}

type statusJSON struct {
	Port           string              `json:"port"`
	BaudRate       int                 `json:"baudRate"`
	Driver         string              `json:"driver"`
	TrackingRate   float64             `json:"trackingRate"`
	Bounds         calibration.Bounds  `json:"bounds"`
	AckTimeout     string              `json:"ackTimeout"`
	SessionTimeout string              `json:"sessionTimeout"`
	Calibration    *calibration.Status `json:"calibration"`
	Schedule       statusScheduleJSON  `json:"schedule"`
}

type statusScheduleJSON struct {
	Enabled     bool       `json:"enabled"`
	Cron        string     `json:"cron"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func printStatusJSON(cmd *cobra.Command, data *statusData, cfg *config.File) error {
	out := statusJSON{
		Port:           cfg.Port(),
		BaudRate:       cfg.BaudRate(),
		Driver:         cfg.Driver(),
		TrackingRate:   cfg.TrackingRate(),
		Bounds:         cfg.Bounds(),
		AckTimeout:     cfg.AckTimeout().String(),
		SessionTimeout: cfg.SessionTimeout().String(),
		Calibration:    data.calibration,
		Schedule: statusScheduleJSON{
			Enabled: cfg.Cron() != "",
			Cron:    cfg.Cron(),
		},
	}
	if !data.calibration.ScheduledAt.IsZero() {
		out.Schedule.ScheduledAt = &data.calibration.ScheduledAt
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func timeoutText(d time.Duration) string {
	if d <= 0 {
		return bold("none")
	}
	return bold("%s", d)
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of mineq",
		Long:    `Get the serial port, stored PWM bounds, calibration state and configuration.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			cfg := config.NewFileFromConfig(data.config, "")

			if asJSON {
				return printStatusJSON(cmd, data, cfg)
			}

			cmd.Println(bold("Motor controller:"))
			cmd.Printf("  Serial port: %s\n", orNone(cfg.Port()))
			cmd.Printf("  Baud rate: %s\n", bold("%d", cfg.BaudRate()))
			cmd.Printf("  Driver: %s\n", bold("%s", cfg.Driver()))
			cmd.Println()

			b := cfg.Bounds()
			cmd.Println(bold("Calibration:"))
			cmd.Printf("  Nominal rate: %s\n", bold("%g", cfg.TrackingRate()))
			cmd.Printf("  PWM low (%gx): %s\n", calibrator.LowFactor, bold("%d", b.Low))
			cmd.Printf("  PWM high (%gx): %s\n", calibrator.HighFactor, bold("%d", b.High))
			printCalibrationStatus(cmd, data.calibration)
			cmd.Println()

			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Ack timeout: %s\n", timeoutText(cfg.AckTimeout()))
			cmd.Printf("  Session timeout: %s\n", timeoutText(cfg.SessionTimeout()))
			if cfg.Cron() != "" {
				cmd.Printf("  Schedule: %s\n", bold("%s", cfg.Cron()))
			} else {
				cmd.Printf("  Schedule: %s\n", orNone(""))
			}
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(cfg.AllowNonRootAccess()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}
