package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/afterfire/pkg/config"
	"github.com/charlie0129/afterfire/pkg/utils/service"
)

var gInstallation = "Installation:"

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false
	deviceKind := ""
	serialPort := ""

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install afterfire as a systemd service",
		GroupID: gInstallation,
		Long: `Install afterfire daemon as a systemd service (system-wide).

This makes afterfire run in the background and start on boot. You must run this command as root.

By default, only root is allowed to access the daemon socket. Use --allow-non-root-access to let other users run afterfire commands without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			if deviceKind != "" {
				if deviceKind != config.DeviceSerial && deviceKind != config.DeviceMock {
					return fmt.Errorf("invalid device %q: must be %s or %s", deviceKind, config.DeviceSerial, config.DeviceMock)
				}
				conf.SetDevice(deviceKind)
			}
			if serialPort != "" {
				conf.SetSerialPort(serialPort)
			}

			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the afterfire daemon.")
			} else {
				logrus.Info("only root user is allowed to access the afterfire daemon.")
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = service.Install(service.Options{
				ConfigPath:         configPath,
				AllowNonRootAccess: allowNonRootAccess,
			})
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use the current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `afterfire install' again.\n", exePath)

			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access afterfire daemon.")
	f.StringVar(&deviceKind, "device", "", "pulse source to save in the config: serial or mock")
	f.StringVar(&serialPort, "serial-port", "", "serial port to save in the config")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the afterfire systemd service",
		GroupID: gInstallation,
		Long: `Uninstall afterfire daemon from systemd (system-wide).

This stops afterfire and removes its unit file. You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := service.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			cmd.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `afterfire' again. If you want a complete uninstall, remove the config file, the settings file and afterfire itself manually.\n", configPath)

			return nil
		},
	}
}
