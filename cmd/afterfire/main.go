package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/afterfire/pkg/client"
	"github.com/charlie0129/afterfire/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/afterfire.sock"
	daemonAddr     = ""
	configPath     = "/etc/afterfire.yaml"

	apiClient *client.Client
)

var (
	gBasic        = "Basic:"
	gCalibration  = "Calibration:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gCalibration,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		})
	}

	return nil
}

func newAPIClient() *client.Client {
	if daemonAddr != "" {
		return client.NewTCPClient(daemonAddr)
	}
	return client.NewClient(unixSocketPath)
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: afterfire daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'afterfire daemon', or point --daemon-socket / --daemon-addr at a running one.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with '--always-allow-non-root-access'")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "afterfire",
		Short: "afterfire turns an RC throttle signal into exhaust flame light effects",
		Long: `afterfire turns an RC throttle signal into exhaust flame light effects.

It reads the receiver's throttle pulse, maps it to a throttle percentage
and drives an LED strip with RPM glow, backfire, brake crackle and idle
burble effects. Use the daemon command to run it, and the other commands
to monitor, calibrate and configure a running daemon.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = newAPIClient()

			// These do not talk to a daemon.
			switch cmd.Name() {
			case "daemon", "version", "ports", "install", "uninstall":
				return nil
			}

			if daemonVersion, err := apiClient.GetVersion(); err == nil && daemonVersion != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": daemonVersion,
				}).Warn("Version mismatch between client and daemon. afterfire may not work as expected.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "daemon config file path (YAML)")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "afterfire daemon unix socket path")
	globalFlags.StringVar(&daemonAddr, "daemon-addr", daemonAddr, "afterfire daemon TCP address, used instead of the unix socket when set")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewSettingsCommand(),
		NewEffectCommand(),
		NewThresholdCommand(),
		NewTestCommand(),
		NewCalibrateCommand(),
		NewEventsCommand(),
		NewPortsCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
