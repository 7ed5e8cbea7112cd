package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/charlie0129/afterfire/pkg/flame"
)

// Terminal wraps a device and prints every color change as a swatch.
type Terminal struct {
	Device

	out io.Writer

	mu      sync.Mutex
	last    flame.RGB
	printed bool
}

func NewTerminal(d Device, out io.Writer) *Terminal {
	return &Terminal{Device: d, out: out}
}

func (t *Terminal) WriteColor(c flame.RGB) error {
	t.mu.Lock()
	changed := !t.printed || c != t.last
	t.last = c
	t.printed = true
	t.mu.Unlock()

	if changed {
		fmt.Fprintf(t.out, "%s %s\n", swatch(c).Sprint("        "), c.Hex())
	}
	return t.Device.WriteColor(c)
}

// swatch builds a truecolor background (SGR 48;2;r;g;b).
func swatch(c flame.RGB) *color.Color {
	return color.New(
		color.Attribute(48), color.Attribute(2),
		color.Attribute(c.R), color.Attribute(c.G), color.Attribute(c.B),
	)
}
