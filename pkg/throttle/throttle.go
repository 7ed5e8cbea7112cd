package throttle

import "github.com/sirupsen/logrus"

// Breakpoints are the calibrated pulse widths (microseconds) that define the
// piecewise-linear throttle mapping.
type Breakpoints struct {
	NeutralMin   uint16 `json:"neutralMin"`
	NeutralMax   uint16 `json:"neutralMax"`
	MinPulse     uint16 `json:"minPulse"`
	NeutralPulse uint16 `json:"neutralPulse"`
	MaxPulse     uint16 `json:"maxPulse"`
}

// DeadZone is the half-width of the neutral band around the calibrated
// neutral pulse.
const DeadZone = 25

// DefaultBreakpoints are used when nothing valid has been persisted.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{
		NeutralMin:   1890,
		NeutralMax:   1930,
		MinPulse:     1496, // full brake / reverse
		NeutralPulse: 1916,
		MaxPulse:     2000, // full throttle
	}
}

// Valid reports whether minPulse < neutralMin <= neutralMax < maxPulse.
// Map works on any breakpoints; an invalid set only maps poorly.
func (b Breakpoints) Valid() bool {
	return b.MinPulse < b.NeutralMin && b.NeutralMin <= b.NeutralMax && b.NeutralMax < b.MaxPulse
}

func (b Breakpoints) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"neutralMin":   b.NeutralMin,
		"neutralMax":   b.NeutralMax,
		"minPulse":     b.MinPulse,
		"neutralPulse": b.NeutralPulse,
		"maxPulse":     b.MaxPulse,
	}
}

// Map converts a pulse width into a throttle percentage in [-100,100].
// 0 means the pulse is inside the neutral dead zone. A branch whose
// calibrated span is zero maps to 0 instead of dividing by zero.
func Map(pulse uint16, b Breakpoints) int8 {
	p := int32(pulse)

	var percent int32
	switch {
	case pulse >= b.NeutralMin && pulse <= b.NeutralMax:
		return 0
	case pulse > b.NeutralMax:
		span := int32(b.MaxPulse) - int32(b.NeutralMax)
		if span == 0 {
			return 0
		}
		percent = (p - int32(b.NeutralMax)) * 100 / span
	default:
		span := int32(b.NeutralMin) - int32(b.MinPulse)
		if span == 0 {
			return 0
		}
		// Interpolated from minPulse upwards so anything below neutralMin
		// is at least -1.
		percent = (p-int32(b.MinPulse))*100/span - 100
	}

	if percent > 100 {
		percent = 100
	} else if percent < -100 {
		percent = -100
	}

	return int8(percent)
}
