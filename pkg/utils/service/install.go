package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const unitName = "mineq.service"

var (
	unitDir = "/etc/systemd/system"

	// systemctl is a test seam.
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %v: %w: %s", args, err, out)
		}
		return nil
	}
)

// UnitPath is where the unit file is written.
func UnitPath() string {
	return filepath.Join(unitDir, unitName)
}

// Install writes the unit for the current executable, then enables and starts
// it.
func Install(o UnitOptions) error {
	if o.ExePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get the path to the current executable: %w", err)
		}
		o.ExePath = exePath
	}
	exePath, err := filepath.Abs(o.ExePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}
	o.ExePath = exePath

	logrus.Infof("current executable path: %s", exePath)

	unit, err := RenderUnit(o)
	if err != nil {
		return fmt.Errorf("failed to render unit: %w", err)
	}

	if err := os.MkdirAll(unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	path := UnitPath()
	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("%s already exists, overwriting", path)
	}

	logrus.Infof("writing systemd unit to %s", path)
	if err := os.WriteFile(path, []byte(unit), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}

	logrus.Infof("starting mineq")
	return systemctl("enable", "--now", unitName)
}
