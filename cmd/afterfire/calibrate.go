package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/afterfire/pkg/calibration"
)

var captureSteps = []string{
	calibration.StepNeutral.String(),
	calibration.StepThrottle.String(),
	calibration.StepBrake.String(),
}

var stepPrompts = map[string]string{
	calibration.StepNeutral.String():  "Leave the trigger at rest",
	calibration.StepThrottle.String(): "Hold full throttle",
	calibration.StepBrake.String():    "Hold full brake",
}

func NewCalibrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibrate",
		Aliases: []string{"calibration", "cali"},
		Short:   "Calibrate the throttle range of your transmitter",
		Long: `Calibrate the throttle range of your transmitter.

Calibration captures three pulse widths in order: neutral, full throttle and
full brake. The light is blue while a capture is expected and turns green for
a second once all three are stored. Run "afterfire calibrate wizard" to be
guided through it.`,
		GroupID: gCalibration,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start (or restart) a calibration sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.StartCalibration()
			if err != nil {
				return fmt.Errorf("failed to start calibration: %w", err)
			}
			cmd.Printf("Calibration started. Next step: %s\n", bold("%s", st.StepName))
			return nil
		},
	}

	captureCmd := &cobra.Command{
		Use:       "capture [neutral|throttle|brake]",
		Short:     "Capture the current pulse width for one step",
		Args:      cobra.ExactArgs(1),
		ValidArgs: captureSteps,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiClient.Capture(args[0])
			if err != nil {
				return err
			}
			printCaptureResult(cmd, args[0], res)
			if !res.Captured {
				return fmt.Errorf("capture rejected")
			}
			return nil
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the calibration and restore the previous range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.CancelCalibration(); err != nil {
				return fmt.Errorf("failed to cancel calibration: %w", err)
			}
			cmd.Println("Calibration canceled and previous range restored.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show current calibration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetCalibration()
			if err != nil {
				return fmt.Errorf("failed to fetch calibration status: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}

	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Show the stored throttle range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bp, err := apiClient.GetCalibrationResults()
			if err != nil {
				return fmt.Errorf("failed to fetch calibration results: %w", err)
			}
			cmd.Printf("Brake: %s\n", bold("%d µs", bp.MinPulse))
			cmd.Printf("Neutral: %s (dead zone %d-%d µs)\n", bold("%d µs", bp.NeutralPulse), bp.NeutralMin, bp.NeutralMax)
			cmd.Printf("Full throttle: %s\n", bold("%d µs", bp.MaxPulse))
			return nil
		},
	}

	wizardCmd := &cobra.Command{
		Use:   "wizard",
		Short: "Walk through all calibration steps interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWizard(cmd, cmd.InOrStdin())
		},
	}

	cmd.AddCommand(startCmd, captureCmd, cancelCmd, statusCmd, resultsCmd, wizardCmd)
	return cmd
}

func runWizard(cmd *cobra.Command, in io.Reader) error {
	if _, err := apiClient.StartCalibration(); err != nil {
		return fmt.Errorf("failed to start calibration: %w", err)
	}
	cmd.Println("Calibration started, the light should be blue now.")
	cmd.Println("Press Enter to capture each step, or type \"q\" to cancel.")

	r := bufio.NewReader(in)
	for i := 0; i < len(captureSteps); {
		step := captureSteps[i]
		cmd.Printf("\n%s %s, then press Enter: ", bold("[%d/%d]", i+1, len(captureSteps)), stepPrompts[step])

		line, err := r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			_, _ = apiClient.CancelCalibration()
			return fmt.Errorf("calibration aborted: %w", err)
		}
		if strings.EqualFold(strings.TrimSpace(line), "q") {
			if _, err := apiClient.CancelCalibration(); err != nil {
				return fmt.Errorf("failed to cancel calibration: %w", err)
			}
			cmd.Println("Calibration canceled and previous range restored.")
			return nil
		}

		res, err := apiClient.Capture(step)
		if err != nil {
			return err
		}
		printCaptureResult(cmd, step, res)
		if res.Captured {
			i++
		}
	}

	cmd.Println()
	cmd.Println(color.New(color.Bold, color.FgGreen).Sprint("Calibration complete."))
	return nil
}

func printCaptureResult(cmd *cobra.Command, step string, res calibration.Result) {
	if res.Captured {
		cmd.Printf("%s %s captured at %s\n", bool2Text(true), step, bold("%d µs", res.Value))
		return
	}
	cmd.Printf("%s %s not captured: %s\n", bool2Text(false), step, res.Error)
}

func printCalibrationStatus(cmd *cobra.Command, st *calibration.Status) {
	cmd.Printf("Step: %s\n", bold("%s", st.StepName))
	if st.Step.Capturing() {
		cmd.Printf("  %s\n", stepPrompts[st.StepName])
	}
	cmd.Printf("Can cancel: %s\n", bool2Text(st.CanCancel))
	bp := st.Breakpoints
	cmd.Printf("Range: %d / %d / %d µs (brake / neutral / throttle)\n", bp.MinPulse, bp.NeutralPulse, bp.MaxPulse)
}
