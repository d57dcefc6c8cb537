package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mineq-project/mineq/pkg/config"
	"github.com/mineq-project/mineq/pkg/daemon"
	"github.com/mineq-project/mineq/pkg/transport"
	"github.com/mineq-project/mineq/pkg/version"
)

// alwaysAllowNonRootAccess overrides allowNonRootAccess from the config.
var alwaysAllowNonRootAccess = false

// checkPort warns when the configured serial port is missing. The daemon
// still starts: USB adapters often show up after boot.
func checkPort() {
	conf, err := config.NewFile(configPath)
	if err != nil || conf.Port() == "" {
		return
	}
	if _, err := os.Stat(conf.Port()); !errors.Is(err, os.ErrNotExist) {
		return
	}

	log := logrus.WithField("port", conf.Port())
	if ports, err := transport.ListPorts(); err == nil && len(ports) > 0 {
		log = log.WithField("available", ports)
	}
	log.Warn("configured serial port does not exist yet")
}

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run mineq daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run mineq daemon in the foreground.

The daemon owns the serial port, runs calibrations on request or on schedule
and serves the API used by the other commands. Use 'mineq install' to run it as
a systemd service instead.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
				"socket":  unixSocketPath,
			}).Info("mineq daemon starting")
			checkPort()
			return daemon.Run(configPath, unixSocketPath, alwaysAllowNonRootAccess)
		},
	}

	cmd.Flags().BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")

	return cmd
}
