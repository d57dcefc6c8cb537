package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Uninstall stops and disables the service and removes its unit file. A
// missing unit is not an error.
func Uninstall() error {
	path := UnitPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.Infof("%s does not exist, nothing to do", path)
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	logrus.Infof("stopping mineq")
	if err := systemctl("disable", "--now", unitName); err != nil {
		return fmt.Errorf("%w. Are you root?", err)
	}

	logrus.Infof("removing systemd unit")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", path, err)
	}

	return systemctl("daemon-reload")
}
