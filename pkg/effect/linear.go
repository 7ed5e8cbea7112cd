package effect

import "github.com/chewxy/math32"

// LinearMap re-maps x from [inMin,inMax] to [outMin,outMax] with integer
// arithmetic (truncating). It is not clamped. A zero-width input range
// yields outMin.
func LinearMap(x, inMin, inMax, outMin, outMax int) int {
	if inMax == inMin {
		return outMin
	}
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// LinearMapRound is LinearMap rounded to the nearest integer.
func LinearMapRound(x, inMin, inMax, outMin, outMax int) int {
	if inMax == inMin {
		return outMin
	}
	v := float32(x-inMin)*float32(outMax-outMin)/float32(inMax-inMin) + float32(outMin)
	return int(math32.Round(v))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
