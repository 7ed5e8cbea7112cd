package flame

import (
	"fmt"
	"image/color"
)

// RGB is the color of the single exhaust LED (or every LED of the strip).
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

var (
	Black = RGB{}
	// Blue is shown while a calibration step is waiting for a capture.
	Blue = RGB{B: 255}
	// Green is shown for one display cycle after calibration completes.
	Green = RGB{G: 128}
)

// Heat maps an abstract heat value to a flame color. Values outside
// [0,255] are clamped first.
//
//	heat < 120        deep red      (heat, heat/4, 0)
//	120 <= heat < 200 orange        (255, heat, 0)
//	heat >= 200       yellow-white  (255, 255, heat-200)
func Heat(heat int) RGB {
	if heat < 0 {
		heat = 0
	} else if heat > 255 {
		heat = 255
	}

	switch {
	case heat < 120:
		return RGB{R: uint8(heat), G: uint8(heat / 4)}
	case heat < 200:
		return RGB{R: 255, G: uint8(heat)}
	default:
		return RGB{R: 255, G: 255, B: uint8(heat - 200)}
	}
}

// FadeToBlackBy dims every channel by amount/256.
func FadeToBlackBy(c RGB, amount uint8) RGB {
	scale := 256 - uint16(amount)
	return RGB{
		R: uint8(uint16(c.R) * scale >> 8),
		G: uint8(uint16(c.G) * scale >> 8),
		B: uint8(uint16(c.B) * scale >> 8),
	}
}

// IsBlack reports whether all channels are off.
func (c RGB) IsBlack() bool {
	return c == Black
}

// Hex returns the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RGBA converts to the type LED drivers take.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}
