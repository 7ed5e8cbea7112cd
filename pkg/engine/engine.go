// Package engine owns the per-tick state of the flame effect: breakpoints,
// effect configuration, the running burst, the calibration machine, and the
// output color. Tick is driven by a single loop; the other methods may be
// called from any goroutine.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/afterfire/pkg/calibration"
	"github.com/charlie0129/afterfire/pkg/effect"
	"github.com/charlie0129/afterfire/pkg/events"
	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/pulse"
	"github.com/charlie0129/afterfire/pkg/settings"
	"github.com/charlie0129/afterfire/pkg/throttle"
)

// CompleteDisplay is how long the calibration-complete color stays on.
const CompleteDisplay = time.Second

// statusLogInterval throttles the Debug status line.
const statusLogInterval = 500 * time.Millisecond

// Manual burst names.
const (
	TestBackfire = "backfire"
	TestCrackle  = "crackle"
)

var ErrUnknownTest = errors.New("unknown test effect")

type Options struct {
	Source   pulse.Source
	Settings settings.Settings
	// Persister receives settings after calibration and config changes.
	// Optional.
	Persister settings.Persister
	// Publisher receives engine events. Optional.
	Publisher events.Publisher
	// Rand defaults to a PCG source seeded from the clock.
	Rand effect.Rand
	// Clock defaults to time.Now. Only Status and manual bursts use it,
	// Tick takes its time explicitly.
	Clock func() time.Time
}

type Engine struct {
	mu sync.Mutex

	src       pulse.Source
	persister settings.Persister
	publisher events.Publisher
	rng       effect.Rand
	clock     func() time.Time

	bp  throttle.Breakpoints
	cfg effect.Config
	fx  effect.Effects
	cal *calibration.Machine

	prevPulse     uint16
	completeUntil time.Time

	started  time.Time
	lastTick time.Time
	ticks    uint64

	lastStatusLog time.Time
	lastLogged    statusLine
}

func New(opts Options) *Engine {
	if opts.Source == nil {
		opts.Source = pulse.NewCell()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = effect.NewRand(uint64(opts.Clock().UnixNano()))
	}

	e := &Engine{
		src:       opts.Source,
		persister: opts.Persister,
		publisher: opts.Publisher,
		rng:       opts.Rand,
		clock:     opts.Clock,
		bp:        opts.Settings.Breakpoints,
		cfg:       opts.Settings.Effects,
		prevPulse: pulse.DefaultWidth,
		started:   opts.Clock(),
	}
	e.cal = calibration.NewMachine(e.persistBreakpoints)

	logrus.WithFields(e.bp.LogrusFields()).WithFields(e.cfg.LogrusFields()).Info("engine initialized")
	return e
}

// Tick runs one update: read the pulse, then either show the calibration
// indicator or run the detectors and advance the burst. The current pulse
// becomes the previous sample in both cases.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.src.ReadPulseWidth()
	curPct := throttle.Map(cur, e.bp)
	prevPct := throttle.Map(e.prevPulse, e.bp)

	switch step := e.cal.Step(); {
	case step.Capturing():
		e.fx.Color = flame.Blue
	case step == calibration.StepComplete:
		e.fx.Color = flame.Green
		if e.completeUntil.IsZero() {
			e.completeUntil = now.Add(CompleteDisplay)
		} else if !now.Before(e.completeUntil) {
			e.completeUntil = time.Time{}
			e.fx.Color = flame.Black
			if err := e.cal.Finish(); err == nil {
				e.publishStep(calibration.StepComplete, calibration.StepIdle, 0)
			}
		}
	default:
		trigger := e.fx.Tick(e.cfg, prevPct, curPct, now, e.rng)
		if trigger == effect.TriggerBackfire || trigger == effect.TriggerBrakeCrackle {
			e.publishBurst(trigger.String(), curPct, now)
		}
	}

	e.prevPulse = cur
	e.lastTick = now
	e.ticks++

	e.logStatus(now, cur, curPct)
}

// CurrentColor is the color the light output should show after the last
// tick.
func (e *Engine) CurrentColor() flame.RGB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fx.Color
}

// Status is the monitoring snapshot.
type Status struct {
	ThrottlePercent     int8              `json:"throttlePercent"`
	BurstActive         bool              `json:"burstActive"`
	CalibrationStepName string            `json:"calibrationStepName"`
	PulseWidth          uint16            `json:"pulseWidth"`
	Color               flame.RGB         `json:"color"`
	Burst               effect.BurstState `json:"burst"`
	UptimeMs            int64             `json:"uptimeMs"`
	Ticks               uint64            `json:"ticks"`
	LastTick            time.Time         `json:"lastTick"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.src.ReadPulseWidth()
	burst := e.fx.Burst.State()
	return Status{
		ThrottlePercent:     throttle.Map(p, e.bp),
		BurstActive:         burst.Active,
		CalibrationStepName: e.cal.Step().String(),
		PulseWidth:          p,
		Color:               e.fx.Color,
		Burst:               burst,
		UptimeMs:            e.clock().Sub(e.started).Milliseconds(),
		Ticks:               e.ticks,
		LastTick:            e.lastTick,
	}
}

// Settings returns the persisted part of the engine state.
func (e *Engine) Settings() settings.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return settings.Settings{Breakpoints: e.bp, Effects: e.cfg}
}

func (e *Engine) Breakpoints() throttle.Breakpoints {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bp
}

func (e *Engine) Config() effect.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// ApplySettings replaces breakpoints and configuration, e.g. after a reload.
// It does not persist.
func (e *Engine) ApplySettings(s settings.Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bp = s.Breakpoints
	e.cfg = s.Effects
	logrus.WithFields(e.bp.LogrusFields()).WithFields(e.cfg.LogrusFields()).Info("settings applied")
}

// SetEffect toggles an effect. The change is visible on the next tick.
func (e *Engine) SetEffect(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.SetEffect(name, enabled); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"effect": name, "enabled": enabled}).Info("effect updated")

	e.persistLocked()
	e.publish(events.ConfigChanged, events.ConfigChangedEvent{
		Name:    name,
		Enabled: &enabled,
		Ts:      e.clock().Unix(),
	})
	return nil
}

// SetThreshold sets a trigger threshold. Range and ordering are not
// checked here.
func (e *Engine) SetThreshold(name string, value int8) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.SetThreshold(name, value); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"threshold": name, "value": value}).Info("threshold updated")

	e.persistLocked()
	e.publish(events.ConfigChanged, events.ConfigChangedEvent{
		Name:  name,
		Value: &value,
		Ts:    e.clock().Unix(),
	})
	return nil
}

// TestBurst arms a fixed manual burst. It is ignored by the output while
// calibrating, like any other effect.
func (e *Engine) TestBurst(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	switch name {
	case TestBackfire:
		e.fx.ManualBackfire(now)
	case TestCrackle:
		e.fx.ManualCrackle(now)
	default:
		return ErrUnknownTest
	}

	logrus.WithField("effect", name).Info("manual burst armed")
	e.publishBurst("test-"+name, throttle.Map(e.src.ReadPulseWidth(), e.bp), now)
	return nil
}

func (e *Engine) persistBreakpoints(bp throttle.Breakpoints) {
	if e.persister == nil {
		return
	}
	e.persister.Persist(settings.Settings{Breakpoints: bp, Effects: e.cfg})
}

func (e *Engine) persistLocked() {
	if e.persister == nil {
		return
	}
	e.persister.Persist(settings.Settings{Breakpoints: e.bp, Effects: e.cfg})
}

func (e *Engine) publish(name string, payload any) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(name, payload)
}

func (e *Engine) publishBurst(trigger string, pct int8, now time.Time) {
	st := e.fx.Burst.State()
	e.publish(events.BurstArmed, events.BurstArmedEvent{
		Trigger:   trigger,
		Flashes:   st.Remaining,
		Intensity: st.Intensity,
		Throttle:  pct,
		Ts:        now.Unix(),
	})
}

func (e *Engine) publishStep(from, to calibration.Step, p uint16) {
	e.publish(events.CalibrationStep, events.CalibrationStepEvent{
		From:  from.String(),
		To:    to.String(),
		Pulse: p,
		Ts:    e.clock().Unix(),
	})
}

type statusLine struct {
	pulse    uint16
	throttle int8
	step     calibration.Step
	burst    bool
}

// logStatus writes the tick status at Trace, and at Debug when it changed
// and the last Debug line is old enough.
func (e *Engine) logStatus(now time.Time, p uint16, pct int8) {
	cur := statusLine{pulse: p, throttle: pct, step: e.cal.Step(), burst: e.fx.Burst.Active()}
	fields := logrus.Fields{
		"pulse":    p,
		"throttle": pct,
		"step":     cur.step,
		"burst":    cur.burst,
		"color":    e.fx.Color.Hex(),
	}

	if cur == e.lastLogged || now.Sub(e.lastStatusLog) < statusLogInterval {
		logrus.WithFields(fields).Trace("tick")
		return
	}

	logrus.WithFields(fields).Debug("tick")
	e.lastLogged = cur
	e.lastStatusLog = now
}
