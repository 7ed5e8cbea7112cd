package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/afterfire/pkg/config"
	"github.com/charlie0129/afterfire/pkg/daemon"
	"github.com/charlie0129/afterfire/pkg/device"
	"github.com/charlie0129/afterfire/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the afterfire daemon.
	alwaysAllowNonRootAccess = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	var (
		deviceKind string
		serialPort string
		listenAddr string
		preview    bool
	)

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run afterfire daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run afterfire daemon in the foreground.

The daemon reads the throttle pulse from a serial bridge (or a simulated
transmitter with --device mock), runs the flame engine and serves the HTTP
API on a unix socket and, optionally, on a TCP address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("afterfire daemon starting")

			conf, err := config.NewFile(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			flags := cmd.Flags()
			if flags.Changed("device") {
				if deviceKind != config.DeviceSerial && deviceKind != config.DeviceMock {
					return fmt.Errorf("invalid device %q: must be %s or %s", deviceKind, config.DeviceSerial, config.DeviceMock)
				}
				conf.SetDevice(deviceKind)
			}
			if flags.Changed("serial-port") {
				conf.SetSerialPort(serialPort)
			}
			if flags.Changed("listen") {
				conf.SetListenAddress(listenAddr)
			}
			if flags.Changed("preview") {
				conf.SetPreview(preview)
			}
			if cmd.Flags().Changed("daemon-socket") {
				conf.SetUnixSocket(unixSocketPath)
			}

			logrus.WithFields(conf.LogrusFields()).Info("config loaded")

			return daemon.Run(conf, alwaysAllowNonRootAccess)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.StringVar(&deviceKind, "device", config.DeviceSerial, "pulse source: serial or mock")
	f.StringVar(&serialPort, "serial-port", "", "serial port of the receiver bridge, e.g. /dev/ttyACM0")
	f.StringVar(&listenAddr, "listen", "", "also serve the HTTP API on this TCP address, e.g. :8080")
	f.BoolVar(&preview, "preview", false, "print every color change as a terminal swatch")

	return cmd
}

func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ports",
		Short:   "List serial ports a receiver bridge could be on",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := device.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				cmd.Println("No serial ports found.")
				return nil
			}
			for _, p := range ports {
				cmd.Println(p)
			}
			return nil
		},
	}
}
