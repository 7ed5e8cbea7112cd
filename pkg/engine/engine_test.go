package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/afterfire/pkg/calibration"
	"github.com/charlie0129/afterfire/pkg/effect"
	"github.com/charlie0129/afterfire/pkg/events"
	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/pulse"
	"github.com/charlie0129/afterfire/pkg/settings"
	"github.com/charlie0129/afterfire/pkg/throttle"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingPersister struct {
	mu    sync.Mutex
	saved []settings.Settings
}

func (p *recordingPersister) Persist(s settings.Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, s)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(name string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
}

type fixture struct {
	cell *pulse.Cell
	eng  *Engine
	pers *recordingPersister
	pub  *recordingPublisher
}

func newFixture(t *testing.T, s settings.Settings) *fixture {
	t.Helper()
	f := &fixture{
		cell: pulse.NewCell(),
		pers: &recordingPersister{},
		pub:  &recordingPublisher{},
	}
	f.eng = New(Options{
		Source:    f.cell,
		Settings:  s,
		Persister: f.pers,
		Publisher: f.pub,
		Rand:      effect.NewRand(7),
		Clock:     func() time.Time { return t0 },
	})
	return f
}

func (f *fixture) tick(width uint16, at time.Duration) {
	f.cell.Store(width)
	f.eng.Tick(t0.Add(at))
}

func TestReleaseArmsBackfire(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	f.tick(1916, 0)
	f.tick(2000, 5*time.Millisecond)
	f.tick(1900, 10*time.Millisecond)

	st := f.eng.Status()
	assert.True(t, st.BurstActive)
	assert.GreaterOrEqual(t, st.Burst.Remaining, 3)
	assert.LessOrEqual(t, st.Burst.Remaining, 8)
	assert.GreaterOrEqual(t, st.Burst.Intensity, uint8(180))
	assert.Contains(t, f.pub.events, events.BurstArmed)
}

func TestBurstPlaysOutAndEnds(t *testing.T) {
	s := settings.Defaults()
	s.Effects.EnableIdleBurble = false
	s.Effects.EnableRPMFlicker = false
	f := newFixture(t, s)

	f.tick(1916, 0)
	f.tick(2000, 5*time.Millisecond)
	f.tick(1916, 10*time.Millisecond)
	require.True(t, f.eng.Status().BurstActive)

	lit := 0
	for i := 3; i < 400 && f.eng.Status().BurstActive; i++ {
		f.tick(1916, time.Duration(i)*5*time.Millisecond)
		if !f.eng.CurrentColor().IsBlack() {
			lit++
		}
	}
	assert.False(t, f.eng.Status().BurstActive)
	assert.Positive(t, lit)
}

func TestStatusThrottle(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	f.cell.Store(1400)
	assert.EqualValues(t, -100, f.eng.Status().ThrottlePercent)

	f.cell.Store(1965)
	assert.EqualValues(t, 50, f.eng.Status().ThrottlePercent)
	assert.Equal(t, "idle", f.eng.Status().CalibrationStepName)
}

func TestCaptureOutOfOrder(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	res := f.eng.CaptureThrottle()
	assert.False(t, res.Captured)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, throttle.DefaultBreakpoints(), f.eng.Breakpoints())

	f.eng.StartCalibration()
	res = f.eng.CaptureThrottle()
	assert.False(t, res.Captured)
	assert.Equal(t, calibration.StepNeutral, f.eng.CalibrationStatus().Step)
}

func TestCalibrationFlow(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	st := f.eng.StartCalibration()
	assert.Equal(t, calibration.StepNeutral, st.Step)
	assert.True(t, st.CanCancel)

	f.tick(2000, 0)
	assert.Equal(t, flame.Blue, f.eng.CurrentColor(), "effects are bypassed while capturing")
	assert.False(t, f.eng.Status().BurstActive)

	f.cell.Store(1500)
	assert.Equal(t, calibration.Result{Captured: true, Value: 1500}, f.eng.CaptureNeutral())
	f.cell.Store(1900)
	assert.Equal(t, calibration.Result{Captured: true, Value: 1900}, f.eng.CaptureThrottle())
	assert.Empty(t, f.pers.saved)
	f.cell.Store(1100)
	assert.Equal(t, calibration.Result{Captured: true, Value: 1100}, f.eng.CaptureBrake())

	want := throttle.Breakpoints{NeutralMin: 1475, NeutralMax: 1525, MinPulse: 1100, NeutralPulse: 1500, MaxPulse: 1900}
	assert.Equal(t, want, f.eng.Breakpoints())
	require.Len(t, f.pers.saved, 1)
	assert.Equal(t, want, f.pers.saved[0].Breakpoints)
	assert.Equal(t, effect.DefaultConfig(), f.pers.saved[0].Effects)

	f.tick(1500, 100*time.Millisecond)
	assert.Equal(t, flame.Green, f.eng.CurrentColor())
	f.tick(1500, 1099*time.Millisecond)
	assert.Equal(t, flame.Green, f.eng.CurrentColor())
	assert.Equal(t, "complete", f.eng.Status().CalibrationStepName)

	f.tick(1500, 1100*time.Millisecond)
	assert.Equal(t, "idle", f.eng.Status().CalibrationStepName)
	assert.Equal(t, flame.Black, f.eng.CurrentColor())

	// Start, three captures, finish.
	n := 0
	for _, e := range f.pub.events {
		if e == events.CalibrationStep {
			n++
		}
	}
	assert.Equal(t, 5, n)
}

func TestPreviousPulseTrackedDuringCalibration(t *testing.T) {
	s := settings.Defaults()
	f := newFixture(t, s)

	f.eng.StartCalibration()
	f.tick(2000, 0)
	require.NoError(t, f.eng.CancelCalibration())

	// prev is the full-throttle sample taken while calibrating, so the
	// release is seen on the first normal tick.
	f.tick(1916, 5*time.Millisecond)
	assert.True(t, f.eng.Status().BurstActive)
}

func TestCancelRestoresBreakpoints(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	assert.ErrorIs(t, f.eng.CancelCalibration(), calibration.ErrNotRunning)

	f.eng.StartCalibration()
	f.cell.Store(1500)
	require.True(t, f.eng.CaptureNeutral().Captured)
	assert.NotEqual(t, throttle.DefaultBreakpoints(), f.eng.Breakpoints())

	require.NoError(t, f.eng.CancelCalibration())
	assert.Equal(t, throttle.DefaultBreakpoints(), f.eng.Breakpoints())
	assert.Equal(t, calibration.StepIdle, f.eng.CalibrationStatus().Step)
	assert.Empty(t, f.pers.saved)
}

func TestConfigSurface(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	assert.ErrorIs(t, f.eng.SetEffect("turbo", true), effect.ErrUnknownEffect)
	assert.ErrorIs(t, f.eng.SetThreshold("turbo", 1), effect.ErrUnknownThreshold)
	assert.Empty(t, f.pers.saved)

	require.NoError(t, f.eng.SetEffect(effect.NameIdle, false))
	require.NoError(t, f.eng.SetThreshold(effect.ThresholdBackfireThrottleMin, 50))

	cfg := f.eng.Config()
	assert.False(t, cfg.EnableIdleBurble)
	assert.EqualValues(t, 50, cfg.BackfireThrottleMin)
	require.Len(t, f.pers.saved, 2)
	assert.Equal(t, cfg, f.pers.saved[1].Effects)
	assert.Equal(t, []string{events.ConfigChanged, events.ConfigChanged}, f.pub.events)

	// No ordering checks: release above arm is accepted.
	require.NoError(t, f.eng.SetThreshold(effect.ThresholdBackfireReleaseMax, 90))
}

func TestDisabledBackfireIgnoresRelease(t *testing.T) {
	s := settings.Defaults()
	require.NoError(t, s.Effects.SetEffect(effect.NameBackfire, false))
	require.NoError(t, s.Effects.SetEffect(effect.NameBrake, false))
	f := newFixture(t, s)

	f.tick(1916, 0)
	f.tick(2000, 5*time.Millisecond)
	f.tick(1900, 10*time.Millisecond)
	assert.False(t, f.eng.Status().BurstActive)
}

func TestApplySettings(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	s := settings.Defaults()
	s.Breakpoints.MaxPulse = 1950
	s.Effects.RPMFlickerThreshold = 10
	f.eng.ApplySettings(s)

	assert.Equal(t, s, f.eng.Settings())
	assert.Empty(t, f.pers.saved)
}

func TestTestBurst(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	assert.ErrorIs(t, f.eng.TestBurst("smoke"), ErrUnknownTest)

	require.NoError(t, f.eng.TestBurst(TestBackfire))
	st := f.eng.Status().Burst
	assert.True(t, st.Active)
	assert.Equal(t, 5, st.Remaining)
	assert.EqualValues(t, 240, st.Intensity)

	require.NoError(t, f.eng.TestBurst(TestCrackle))
	st = f.eng.Status().Burst
	assert.Equal(t, 6, st.Remaining)
	assert.EqualValues(t, 200, st.Intensity)
}

func TestConcurrentSurfaces(t *testing.T) {
	f := newFixture(t, settings.Defaults())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			f.tick(uint16(1500+i), time.Duration(i)*5*time.Millisecond)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = f.eng.SetThreshold(effect.ThresholdRPMFlicker, int8(i%100))
			_ = f.eng.Status()
		}
	}()
	wg.Wait()

	assert.EqualValues(t, 500, f.eng.Status().Ticks)
}
