package device

import (
	"sync"
	"time"

	"github.com/charlie0129/afterfire/pkg/flame"
)

// Keyframe is a pulse width reached At into the profile.
type Keyframe struct {
	At    time.Duration
	Width uint16
}

// DefaultProfile drives the stock breakpoints through every trigger: idle,
// a throttle ramp (RPM flicker), a sharp release (backfire), a blip into
// full brake (brake crackle), then back to neutral.
var DefaultProfile = []Keyframe{
	{At: 0, Width: 1916},
	{At: 2 * time.Second, Width: 1916},
	{At: 3 * time.Second, Width: 2000},
	{At: 4 * time.Second, Width: 2000},
	{At: 4*time.Second + 20*time.Millisecond, Width: 1916},
	{At: 6 * time.Second, Width: 1916},
	{At: 6*time.Second + 300*time.Millisecond, Width: 1980},
	{At: 6*time.Second + 320*time.Millisecond, Width: 1496},
	{At: 7 * time.Second, Width: 1496},
	{At: 7*time.Second + 200*time.Millisecond, Width: 1916},
	{At: 9 * time.Second, Width: 1916},
}

// Mock simulates a transmitter replaying a looped throttle profile. Widths
// are interpolated linearly between keyframes.
type Mock struct {
	profile []Keyframe
	start   time.Time
	clock   func() time.Time

	mu   sync.Mutex
	last flame.RGB
}

var _ Device = &Mock{}

// NewMock starts replaying profile now. A nil clock means time.Now. An
// empty profile means DefaultProfile.
func NewMock(profile []Keyframe, clock func() time.Time) *Mock {
	if len(profile) == 0 {
		profile = DefaultProfile
	}
	if clock == nil {
		clock = time.Now
	}
	return &Mock{profile: profile, start: clock(), clock: clock}
}

func (m *Mock) ReadPulseWidth() uint16 {
	return m.widthAt(m.clock().Sub(m.start))
}

func (m *Mock) widthAt(d time.Duration) uint16 {
	cycle := m.profile[len(m.profile)-1].At
	if cycle > 0 {
		d %= cycle
	}

	prev := m.profile[0]
	for _, k := range m.profile[1:] {
		if d < k.At {
			span := k.At - prev.At
			if span <= 0 {
				return k.Width
			}
			delta := int64(k.Width) - int64(prev.Width)
			return uint16(int64(prev.Width) + delta*int64(d-prev.At)/int64(span))
		}
		prev = k
	}
	return prev.Width
}

// WriteColor records the color.
func (m *Mock) WriteColor(c flame.RGB) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = c
	return nil
}

// LastColor is the last color written.
func (m *Mock) LastColor() flame.RGB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Mock) Close() error {
	return nil
}
