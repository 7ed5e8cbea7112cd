package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/afterfire/pkg/flame"
)

func parseIntArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

// newEnableDisableCommand builds "<use> enable" and "<use> disable" around set.
func newEnableDisableCommand(use, short string, set func(enabled bool) (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}

	for _, enabled := range []bool{true, false} {
		verb := "disable"
		if enabled {
			verb = "enable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   verb,
			Short: strings.ToUpper(verb[:1]) + verb[1:] + " " + short,
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := set(enabled)
				if err != nil {
					return fmt.Errorf("failed to %s %s: %w", verb, use, err)
				}
				logrus.WithField("response", ret).Debug("daemon responded")
				logrus.Infof("%sd %s", verb, use)
				return nil
			},
		})
	}

	return cmd
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// swatch renders c as a small truecolor block (SGR 48;2;r;g;b).
func swatch(c flame.RGB) string {
	return color.New(
		color.Attribute(48), color.Attribute(2),
		color.Attribute(c.R), color.Attribute(c.G), color.Attribute(c.B),
	).Sprint("    ")
}
