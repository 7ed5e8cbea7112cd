//go:build tinygo

// Command firmware runs the flame engine on the receiver-side MCU.
//
// It measures the throttle channel with a pin-change interrupt, ticks the
// engine every 5 ms and drives a WS2812 strip. It also streams the pulse
// width over the USB serial link, so the same board works as the capture
// bridge of a host daemon: while the host keeps sending color lines, those
// win over the local engine.
package main

import (
	"image/color"
	"io"
	"machine"
	"runtime/interrupt"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers/ws2812"

	"github.com/charlie0129/afterfire/pkg/engine"
	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/link"
	"github.com/charlie0129/afterfire/pkg/pulse"
	"github.com/charlie0129/afterfire/pkg/settings"
)

const (
	throttlePin = machine.D2
	ledPin      = machine.D3
	numLEDs     = 1

	tickInterval = 5 * time.Millisecond
	// A pulse line every 4 ticks is 50 Hz, one per RC frame.
	reportEvery = 4
	// Host colors older than this are stale and the local engine takes over.
	hostTimeout = 250 * time.Millisecond
)

var leds [numLEDs]color.RGBA

type bridge struct {
	serial  machine.Serialer
	buf     []byte
	color   flame.RGB
	updated time.Time
}

// poll consumes whatever the host sent without blocking.
func (b *bridge) poll(now time.Time) {
	for b.serial.Buffered() > 0 {
		c, err := b.serial.ReadByte()
		if err != nil {
			return
		}
		if c != '\n' {
			if len(b.buf) < 32 {
				b.buf = append(b.buf, c)
			}
			continue
		}
		if rgb, err := link.ParseColorLine(string(b.buf)); err == nil {
			b.color = rgb
			b.updated = now
		}
		b.buf = b.buf[:0]
	}
}

func (b *bridge) active(now time.Time) bool {
	return !b.updated.IsZero() && now.Sub(b.updated) < hostTimeout
}

func main() {
	// stdout is the serial link, keep it for protocol lines only.
	logrus.SetOutput(io.Discard)

	cell := pulse.NewCell()
	edges := pulse.NewEdgeTimer(cell)

	throttlePin.Configure(machine.PinConfig{Mode: machine.PinInput})
	err := throttlePin.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		edges.Edge(p.Get(), uint32(time.Now().UnixMicro()))
	})
	if err != nil {
		panic(err)
	}

	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	strip := ws2812.New(ledPin)

	// Settings are compiled in; calibration and tuning happen on a host.
	eng := engine.New(engine.Options{
		Source:   cell,
		Settings: settings.Defaults(),
	})

	host := &bridge{serial: machine.Serial, buf: make([]byte, 0, 32)}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var (
		n    uint
		last flame.RGB
	)
	for now := range ticker.C {
		host.poll(now)
		eng.Tick(now)

		out := eng.CurrentColor()
		if host.active(now) {
			out = host.color
		}
		if n == 0 || out != last {
			show(strip, out)
			last = out
		}

		if n%reportEvery == 0 {
			_, _ = host.serial.Write([]byte(link.FormatPulseLine(cell.Load())))
		}
		n++
	}
}

func show(strip ws2812.Device, c flame.RGB) {
	for i := range leds {
		leds[i] = c.RGBA()
	}
	// WS2812 timing breaks if the pin interrupt fires mid-frame.
	state := interrupt.Disable()
	_ = strip.WriteColors(leds[:])
	interrupt.Restore(state)
}
