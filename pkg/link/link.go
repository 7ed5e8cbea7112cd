// Package link is the line protocol between the host daemon and a capture
// MCU running the firmware in bridge mode:
//
//	MCU -> host  P<width>\n       pulse width in microseconds
//	host -> MCU  C<r>,<g>,<b>\n   strip color
//
// Lines may end in \r\n. Anything else on the wire is ignored by both sides.
package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charlie0129/afterfire/pkg/flame"
)

const (
	PulsePrefix = 'P'
	ColorPrefix = 'C'
)

// ParsePulseLine parses a "P<width>" line.
func ParsePulseLine(line string) (uint16, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != PulsePrefix {
		return 0, fmt.Errorf("not a pulse line: %q", line)
	}
	w, err := strconv.ParseUint(line[1:], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid pulse width %q: %w", line[1:], err)
	}
	return uint16(w), nil
}

func FormatPulseLine(width uint16) string {
	return string(PulsePrefix) + strconv.FormatUint(uint64(width), 10) + "\n"
}

// ParseColorLine parses a "C<r>,<g>,<b>" line.
func ParseColorLine(line string) (flame.RGB, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != ColorPrefix {
		return flame.RGB{}, fmt.Errorf("not a color line: %q", line)
	}
	parts := strings.Split(line[1:], ",")
	if len(parts) != 3 {
		return flame.RGB{}, fmt.Errorf("color line needs 3 channels: %q", line)
	}
	var ch [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return flame.RGB{}, fmt.Errorf("invalid channel %q: %w", p, err)
		}
		ch[i] = uint8(v)
	}
	return flame.RGB{R: ch[0], G: ch[1], B: ch[2]}, nil
}

func FormatColorLine(c flame.RGB) string {
	return fmt.Sprintf("%c%d,%d,%d\n", ColorPrefix, c.R, c.G, c.B)
}
