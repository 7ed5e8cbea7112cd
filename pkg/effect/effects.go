package effect

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/afterfire/pkg/flame"
)

// Trigger tells which detector fired during a tick.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerBackfire
	TriggerBrakeCrackle
	TriggerIdleBurble
)

func (t Trigger) String() string {
	switch t {
	case TriggerBackfire:
		return "backfire"
	case TriggerBrakeCrackle:
		return "crackle"
	case TriggerIdleBurble:
		return "burble"
	}
	return "none"
}

const (
	rpmFadeStep = 40
	// idleFadeStep dims the output when neither RPM flicker nor idle burble
	// is enabled, so a last flash does not stay lit.
	idleFadeStep = 50

	rpmMinHeat    = 120
	rpmMaxHeat    = 255
	rpmJitter     = 40
	rpmHeatFloor  = 80
	burbleChance  = 4 // per mille, per tick
	burbleMinHeat = 100
	burbleMaxHeat = 160
	idleBand      = 5

	backfireMinFlashes   = 3
	backfireMaxFlashes   = 8
	backfireMinIntensity = 180
	backfireMaxIntensity = 255

	crackleMinFlashes   = 3
	crackleMaxFlashes   = 7 // exclusive
	crackleMinIntensity = 160
	crackleMaxIntensity = 230 // exclusive

	manualBackfireFlashes   = 5
	manualBackfireIntensity = 240
	manualCrackleFlashes    = 6
	manualCrackleIntensity  = 200
)

// Effects is the visual output and burst owned by the tick loop.
type Effects struct {
	Color flame.RGB
	Burst Scheduler
}

// Tick runs the detectors in their fixed order (RPM flicker, backfire,
// brake crackle, idle burble), then advances the burst. prev and cur are
// the throttle percentages of the previous and current samples.
func (e *Effects) Tick(cfg Config, prev, cur int8, now time.Time, r Rand) Trigger {
	trigger := TriggerNone

	e.rpmFlicker(cfg, cur, r)
	if e.backfire(cfg, prev, cur, now) {
		trigger = TriggerBackfire
	}
	if e.brakeCrackle(cfg, prev, cur, now, r) {
		trigger = TriggerBrakeCrackle
	}
	if e.idleBurble(cfg, cur, r) {
		trigger = TriggerIdleBurble
	}

	if c, ok := e.Burst.Advance(now, r); ok {
		e.Color = c
	}

	if !e.Burst.Active() && !cfg.EnableRPMFlicker && !cfg.EnableIdleBurble {
		e.Color = flame.FadeToBlackBy(e.Color, idleFadeStep)
	}

	return trigger
}

// ManualBackfire arms a fixed backfire burst (test button).
func (e *Effects) ManualBackfire(now time.Time) {
	e.Burst.Arm(manualBackfireFlashes, manualBackfireIntensity, now)
}

// ManualCrackle arms a fixed crackle burst (test button).
func (e *Effects) ManualCrackle(now time.Time) {
	e.Burst.Arm(manualCrackleFlashes, manualCrackleIntensity, now)
}

// rpmFlicker glows proportionally to throttle above the threshold, with
// random jitter. Below the threshold it fades the output. Disabled means
// neither glow nor fade.
func (e *Effects) rpmFlicker(cfg Config, cur int8, r Rand) {
	if !cfg.EnableRPMFlicker || e.Burst.Active() {
		return
	}

	thr := int(cfg.RPMFlickerThreshold)
	if int(cur) > thr {
		heat := LinearMap(int(cur), thr, 100, rpmMinHeat, rpmMaxHeat)
		heat += between(r, -rpmJitter, rpmJitter)
		e.Color = flame.Heat(clamp(heat, rpmHeatFloor, 255))
		return
	}

	e.Color = flame.FadeToBlackBy(e.Color, rpmFadeStep)
}

// backfire detects a throttle release and arms a burst sized by how hard
// the throttle was. It re-arms even if a burst is already running.
func (e *Effects) backfire(cfg Config, prev, cur int8, now time.Time) bool {
	if !cfg.EnableBackfire {
		return false
	}
	if !(prev > cfg.BackfireThrottleMin && cur < cfg.BackfireReleaseMax) {
		return false
	}

	lo := int(cfg.BackfireThrottleMin)
	count := LinearMapRound(int(prev), lo, 100, backfireMinFlashes, backfireMaxFlashes)
	intensity := LinearMapRound(int(prev), lo, 100, backfireMinIntensity, backfireMaxIntensity)

	logrus.WithFields(logrus.Fields{
		"prev":      prev,
		"now":       cur,
		"threshold": cfg.BackfireThrottleMin,
		"release":   cfg.BackfireReleaseMax,
		"flashes":   count,
		"intensity": intensity,
		"preempted": e.Burst.Active(),
	}).Debug("backfire detected")

	e.Burst.Arm(count, intensity, now)
	return true
}

// brakeCrackle detects a stab from throttle into brake and arms a random
// crackle, unless a burst is already running.
func (e *Effects) brakeCrackle(cfg Config, prev, cur int8, now time.Time, r Rand) bool {
	if !cfg.EnableBrakeCrackle || e.Burst.Active() {
		return false
	}
	if !(prev > cfg.BrakeThrottleMin && cur < cfg.BrakeThrottleMax) {
		return false
	}

	count := between(r, crackleMinFlashes, crackleMaxFlashes)
	intensity := between(r, crackleMinIntensity, crackleMaxIntensity)

	logrus.WithFields(logrus.Fields{
		"prev":      prev,
		"now":       cur,
		"flashes":   count,
		"intensity": intensity,
	}).Debug("brake crackle detected")

	e.Burst.Arm(count, intensity, now)
	return true
}

// idleBurble occasionally flashes a dim flame while idling.
func (e *Effects) idleBurble(cfg Config, cur int8, r Rand) bool {
	if !cfg.EnableIdleBurble || e.Burst.Active() {
		return false
	}
	if cur <= -idleBand || cur >= idleBand {
		return false
	}
	if between(r, 0, 1000) >= burbleChance {
		return false
	}

	e.Color = flame.Heat(between(r, burbleMinHeat, burbleMaxHeat))
	return true
}
