package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/afterfire/pkg/engine"
	"github.com/charlie0129/afterfire/pkg/settings"
)

type statusData struct {
	status   *engine.Status
	settings *settings.Settings
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	s, err := apiClient.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return &statusData{status: st, settings: s}, nil
}

// throttleBar draws percent (-100..100) as a bar centered on neutral.
func throttleBar(percent int8, halfWidth int) string {
	n := int(percent) * halfWidth / 100
	left := strings.Repeat(" ", halfWidth)
	right := strings.Repeat(" ", halfWidth)
	if n < 0 {
		left = strings.Repeat(" ", halfWidth+n) + color.RedString(strings.Repeat("█", -n))
	} else if n > 0 {
		right = color.GreenString(strings.Repeat("█", n)) + strings.Repeat(" ", halfWidth-n)
	}
	return "[" + left + "|" + right + "]"
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of afterfire",
		Long:    `Get throttle, flame and engine status of a running daemon.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				st, err := apiClient.GetStatus()
				if err != nil {
					return fmt.Errorf("failed to get status: %w", err)
				}
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			data, err := fetchStatusData()
			if err != nil {
				return err
			}
			st := data.status

			cmd.Println(bold("Throttle:"))
			cmd.Printf("  Position: %s %s\n", bold("%+d%%", st.ThrottlePercent), throttleBar(st.ThrottlePercent, 20))
			cmd.Printf("  Pulse width: %s\n", bold("%d µs", st.PulseWidth))
			cmd.Println()

			cmd.Println(bold("Flame:"))
			cmd.Printf("  Color: %s %s\n", swatch(st.Color), bold("%s", st.Color.Hex()))
			if st.BurstActive {
				cmd.Printf("  Burst: %s, %s flashes left at intensity %d\n",
					color.New(color.Bold, color.FgYellow).Sprint("firing"), bold("%d", st.Burst.Remaining), st.Burst.Intensity)
			} else {
				cmd.Println("  Burst: idle")
			}
			cmd.Println()

			cmd.Println(bold("Engine:"))
			cmd.Printf("  Calibration: %s\n", bold("%s", st.CalibrationStepName))
			cmd.Printf("  Uptime: %s\n", bold("%s", uptime(st.UptimeMs)))
			cmd.Printf("  Ticks: %s\n", bold("%s", humanize.Comma(int64(st.Ticks))))
			if !st.LastTick.IsZero() {
				cmd.Printf("  Last tick: %s\n", humanize.Time(st.LastTick))
			}
			cmd.Println()

			printSettings(cmd, data.settings)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")

	return cmd
}

func uptime(ms int64) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-time.Duration(ms)*time.Millisecond), now, "", ""))
}

func printSettings(cmd *cobra.Command, s *settings.Settings) {
	fx := s.Effects
	cmd.Println(bold("Effects:"))
	cmd.Printf("  Backfire: %s (armed above %s, fires below %s)\n",
		bool2Text(fx.EnableBackfire), bold("%d%%", fx.BackfireThrottleMin), bold("%d%%", fx.BackfireReleaseMax))
	cmd.Printf("  Brake crackle: %s (armed above %s, fires below %s)\n",
		bool2Text(fx.EnableBrakeCrackle), bold("%d%%", fx.BrakeThrottleMin), bold("%d%%", fx.BrakeThrottleMax))
	cmd.Printf("  Idle burble: %s\n", bool2Text(fx.EnableIdleBurble))
	cmd.Printf("  RPM glow: %s (above %s)\n", bool2Text(fx.EnableRPMFlicker), bold("%d%%", fx.RPMFlickerThreshold))
	cmd.Println()

	bp := s.Breakpoints
	cmd.Println(bold("Calibration:"))
	cmd.Printf("  Brake: %s\n", bold("%d µs", bp.MinPulse))
	cmd.Printf("  Neutral: %s (dead zone %d-%d µs)\n", bold("%d µs", bp.NeutralPulse), bp.NeutralMin, bp.NeutralMax)
	cmd.Printf("  Full throttle: %s\n", bold("%d µs", bp.MaxPulse))
}

func NewSettingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "settings",
		GroupID: gBasic,
		Short:   "Show effect switches, thresholds and calibration",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := apiClient.GetSettings()
			if err != nil {
				return fmt.Errorf("failed to get settings: %w", err)
			}
			printSettings(cmd, s)
			return nil
		},
	}
}
