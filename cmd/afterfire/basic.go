package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/afterfire/pkg/effect"
	"github.com/charlie0129/afterfire/pkg/engine"
	"github.com/charlie0129/afterfire/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print version",
		GroupID: gAdvanced,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewEffectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "effect",
		Short:   "Enable or disable flame effects",
		GroupID: gBasic,
		Long: `Enable or disable flame effects.

  backfire  burst of flashes when the throttle is released sharply
  brake     crackle when going from throttle straight into brake
  idle      occasional dim burble around neutral
  rpm       steady glow that follows the throttle`,
	}

	shorts := map[string]string{
		effect.NameBackfire: "backfire on throttle release",
		effect.NameBrake:    "crackle on brake",
		effect.NameIdle:     "idle burble",
		effect.NameRPM:      "RPM glow",
	}
	for _, name := range effect.EffectNames() {
		cmd.AddCommand(newEnableDisableCommand(name, shorts[name], func(enabled bool) (string, error) {
			return apiClient.SetEffect(name, enabled)
		}))
	}

	return cmd
}

func NewThresholdCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "threshold [name] [percent]",
		Short:   "Set an effect trigger threshold",
		GroupID: gBasic,
		Long: fmt.Sprintf(`Set an effect trigger threshold, in throttle percent from -100 to 100.

Available thresholds: %s

Thresholds are not checked against each other. A release threshold above its
arm threshold makes the effect fire continuously.`, strings.Join(effect.ThresholdNames(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			value, err := parseIntArg(args[1:], "threshold")
			if err != nil {
				return err
			}
			if value < -100 || value > 100 {
				return fmt.Errorf("threshold must be between -100 and 100, got %d", value)
			}

			ret, err := apiClient.SetThreshold(args[0], value)
			if err != nil {
				return fmt.Errorf("failed to set threshold: %w", err)
			}
			if ret != "" {
				logrus.Debugf("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set %s to %d%%", args[0], value)
			return nil
		},
	}
}

func NewTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "test [backfire|crackle]",
		Short:     "Fire a burst right now",
		GroupID:   gBasic,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{engine.TestBackfire, engine.TestCrackle},
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := apiClient.TestEffect(args[0]); err != nil {
				return fmt.Errorf("failed to fire %s: %w", args[0], err)
			}
			logrus.Infof("%s fired", args[0])
			return nil
		},
	}
}
