package effect

import (
	"time"

	"github.com/charlie0129/afterfire/pkg/flame"
)

// Gap between two flashes of a burst is drawn fresh every tick from
// [minFlashGap, maxFlashGap) milliseconds.
const (
	minFlashGap = 20
	maxFlashGap = 80
)

// BurstState is a scheduled multi-flash burst.
type BurstState struct {
	Active    bool  `json:"active"`
	Remaining int   `json:"remaining"`
	Intensity uint8 `json:"intensity"`
	// LastFire is when the burst was armed or last flashed. The next flash
	// is due once the freshly drawn gap has elapsed since then.
	LastFire time.Time `json:"lastFire"`
}

// Scheduler advances an armed burst at most one flash per call and never
// blocks. Arming while a burst is in flight overwrites it.
type Scheduler struct {
	state BurstState
}

func (s *Scheduler) State() BurstState {
	return s.state
}

func (s *Scheduler) Active() bool {
	return s.state.Active
}

// Arm schedules a burst of count flashes starting from now.
func (s *Scheduler) Arm(count int, intensity int, now time.Time) {
	if count < 0 {
		count = 0
	}
	s.state = BurstState{
		Active:    true,
		Remaining: count,
		Intensity: uint8(clamp(intensity, 0, 255)),
		LastFire:  now,
	}
}

// Advance moves an active burst forward if its flash gap has elapsed. It
// returns the color to show and whether the output changed. Once no flashes
// remain, the next due step turns the output black and deactivates the
// burst.
func (s *Scheduler) Advance(now time.Time, r Rand) (flame.RGB, bool) {
	if !s.state.Active {
		return flame.Black, false
	}

	gap := time.Duration(between(r, minFlashGap, maxFlashGap)) * time.Millisecond
	if now.Sub(s.state.LastFire) <= gap {
		return flame.Black, false
	}

	var c flame.RGB
	if s.state.Remaining > 0 {
		c = flashColor(r)
		s.state.Remaining--
	} else {
		c = flame.Black
		s.state.Active = false
	}
	s.state.LastFire = now

	return c, true
}

// flashColor draws one of four flame colors:
//
//	0-1 blue (hot combustion)
//	2-3 purple (fuel-rich)
//	4-6 red-orange (unburned fuel)
//	7-9 bright orange-yellow (hot flash)
func flashColor(r Rand) flame.RGB {
	choice := between(r, 0, 10)
	switch {
	case choice < 2:
		return rgb(between(r, 0, 50), between(r, 50, 150), between(r, 180, 255))
	case choice < 4:
		return rgb(between(r, 100, 200), between(r, 0, 80), between(r, 150, 255))
	case choice < 7:
		return rgb(255, between(r, 50, 150), between(r, 0, 30))
	default:
		return rgb(255, between(r, 150, 255), between(r, 0, 100))
	}
}

func rgb(r, g, b int) flame.RGB {
	return flame.RGB{R: uint8(r), G: uint8(g), B: uint8(b)}
}
