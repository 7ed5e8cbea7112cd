// Package service installs the afterfire daemon as a systemd unit.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "afterfire.service"

var (
	unitPath = "/etc/systemd/system/" + unitName

	// systemctl is swapped out in tests.
	systemctl = func(args ...string) error {
		return exec.Command("systemctl", args...).Run()
	}
)

const unitTemplate = `[Unit]
Description=afterfire exhaust flame daemon
After=network.target

[Service]
ExecStart=%s
Restart=on-failure
RestartSec=2

[Install]
WantedBy=multi-user.target
`

// Options are passed to the daemon command line in the unit.
type Options struct {
	ConfigPath         string
	AllowNonRootAccess bool
}

func renderUnit(exePath string, opts Options) string {
	args := []string{exePath, "daemon"}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	if opts.AllowNonRootAccess {
		args = append(args, "--always-allow-non-root-access")
	}
	return fmt.Sprintf(unitTemplate, strings.Join(args, " "))
}

func Install(opts Options) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	dir := filepath.Dir(unitPath)
	logrus.Infof("writing systemd unit to %s", dir)

	// mkdir -p
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	// warn if the file already exists
	_, err = os.Stat(unitPath)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(renderUnit(exePath, opts)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting afterfire")

	if err := systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := systemctl("enable", "--now", unitName); err != nil {
		return fmt.Errorf("failed to enable %s: %w", unitName, err)
	}

	return nil
}
