package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/afterfire/pkg/events"
)

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Short:   "Watch daemon events as they happen",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.Events(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				cmd.Println(formatEvent(ev))
			}
			return nil
		},
	}
}

func formatEvent(ev events.Event) string {
	ts := func(ms int64) string {
		if ms == 0 {
			return time.Now().Format(time.StampMilli)
		}
		return time.UnixMilli(ms).Format(time.StampMilli)
	}

	switch ev.Name {
	case events.BurstArmed:
		p, err := events.DecodeAs[events.BurstArmedEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s %s %s: %d flashes at %d (throttle %+d%%)",
			ts(p.Ts), color.New(color.Bold, color.FgYellow).Sprint("burst"), p.Trigger, p.Flashes, p.Intensity, p.Throttle)
	case events.CalibrationStep:
		p, err := events.DecodeAs[events.CalibrationStepEvent](ev)
		if err != nil {
			break
		}
		msg := fmt.Sprintf("%s %s %s -> %s", ts(p.Ts), color.New(color.Bold, color.FgBlue).Sprint("calibration"), p.From, p.To)
		if p.Pulse != 0 {
			msg += fmt.Sprintf(" (%d µs)", p.Pulse)
		}
		return msg
	case events.ConfigChanged:
		p, err := events.DecodeAs[events.ConfigChangedEvent](ev)
		if err != nil {
			break
		}
		msg := fmt.Sprintf("%s %s %s", ts(p.Ts), bold("config"), p.Name)
		if p.Enabled != nil {
			msg += " " + bool2Text(*p.Enabled)
		}
		if p.Value != nil {
			msg += fmt.Sprintf(" = %d%%", *p.Value)
		}
		return msg
	}
	return fmt.Sprintf("%s %s %s", ts(0), ev.Name, string(ev.Data))
}
