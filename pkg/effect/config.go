package effect

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownEffect    = errors.New("unknown effect")
	ErrUnknownThreshold = errors.New("unknown threshold")
)

// Effect names used by the configuration surface.
const (
	NameBackfire = "backfire"
	NameBrake    = "brake"
	NameIdle     = "idle"
	NameRPM      = "rpm"
)

// Threshold names used by the configuration surface.
const (
	ThresholdBackfireThrottleMin = "backfireThrottleMin"
	ThresholdBackfireReleaseMax  = "backfireReleaseMax"
	ThresholdBrakeThrottleMin    = "brakeThrottleMin"
	ThresholdBrakeThrottleMax    = "brakeThrottleMax"
	ThresholdRPMFlicker          = "rpmFlickerThreshold"
)

// Short names accepted by older dashboards.
var thresholdAliases = map[string]string{
	"backfireMin":  ThresholdBackfireThrottleMin,
	"backfireMax":  ThresholdBackfireReleaseMax,
	"brakeMin":     ThresholdBrakeThrottleMin,
	"brakeMax":     ThresholdBrakeThrottleMax,
	"rpmThreshold": ThresholdRPMFlicker,
}

// Config holds effect toggles and trigger thresholds (throttle percent).
//
// Thresholds are not checked against each other: a release threshold above
// its arm threshold makes the trigger fire constantly, and an arm threshold
// of 100 makes it unreachable. That is left to whoever configures it.
type Config struct {
	EnableBackfire     bool `json:"enableBackfire"`
	EnableBrakeCrackle bool `json:"enableBrakeCrackle"`
	EnableIdleBurble   bool `json:"enableIdleBurble"`
	EnableRPMFlicker   bool `json:"enableRPMFlicker"`

	// Backfire fires when throttle was above BackfireThrottleMin and drops
	// below BackfireReleaseMax.
	BackfireThrottleMin int8 `json:"backfireThrottleMin"`
	BackfireReleaseMax  int8 `json:"backfireReleaseMax"`
	// Brake crackle fires when throttle was above BrakeThrottleMin and drops
	// below BrakeThrottleMax (negative, i.e. braking).
	BrakeThrottleMin int8 `json:"brakeThrottleMin"`
	BrakeThrottleMax int8 `json:"brakeThrottleMax"`
	// RPM flicker glows while throttle is above RPMFlickerThreshold.
	RPMFlickerThreshold int8 `json:"rpmFlickerThreshold"`
}

func DefaultConfig() Config {
	return Config{
		EnableBackfire:      true,
		EnableBrakeCrackle:  true,
		EnableIdleBurble:    true,
		EnableRPMFlicker:    true,
		BackfireThrottleMin: 30,
		BackfireReleaseMax:  15,
		BrakeThrottleMin:    20,
		BrakeThrottleMax:    -20,
		RPMFlickerThreshold: 30,
	}
}

// SetEffect enables or disables an effect by name.
func (c *Config) SetEffect(name string, enabled bool) error {
	switch name {
	case NameBackfire:
		c.EnableBackfire = enabled
	case NameBrake:
		c.EnableBrakeCrackle = enabled
	case NameIdle:
		c.EnableIdleBurble = enabled
	case NameRPM:
		c.EnableRPMFlicker = enabled
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	return nil
}

// Effect reports whether the named effect is enabled.
func (c Config) Effect(name string) (bool, error) {
	switch name {
	case NameBackfire:
		return c.EnableBackfire, nil
	case NameBrake:
		return c.EnableBrakeCrackle, nil
	case NameIdle:
		return c.EnableIdleBurble, nil
	case NameRPM:
		return c.EnableRPMFlicker, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
}

// SetThreshold sets a threshold by name (aliases accepted).
func (c *Config) SetThreshold(name string, value int8) error {
	p, err := c.threshold(name)
	if err != nil {
		return err
	}
	*p = value
	return nil
}

// Threshold returns the named threshold.
func (c Config) Threshold(name string) (int8, error) {
	p, err := c.threshold(name)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

func (c *Config) threshold(name string) (*int8, error) {
	if canonical, ok := thresholdAliases[name]; ok {
		name = canonical
	}
	switch name {
	case ThresholdBackfireThrottleMin:
		return &c.BackfireThrottleMin, nil
	case ThresholdBackfireReleaseMax:
		return &c.BackfireReleaseMax, nil
	case ThresholdBrakeThrottleMin:
		return &c.BrakeThrottleMin, nil
	case ThresholdBrakeThrottleMax:
		return &c.BrakeThrottleMax, nil
	case ThresholdRPMFlicker:
		return &c.RPMFlickerThreshold, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownThreshold, name)
}

// EffectNames lists the names SetEffect accepts.
func EffectNames() []string {
	return []string{NameBackfire, NameBrake, NameIdle, NameRPM}
}

// ThresholdNames lists the canonical names SetThreshold accepts.
func ThresholdNames() []string {
	names := []string{
		ThresholdBackfireThrottleMin,
		ThresholdBackfireReleaseMax,
		ThresholdBrakeThrottleMin,
		ThresholdBrakeThrottleMax,
		ThresholdRPMFlicker,
	}
	sort.Strings(names)
	return names
}

func (c Config) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"backfire":            c.EnableBackfire,
		"brakeCrackle":        c.EnableBrakeCrackle,
		"idleBurble":          c.EnableIdleBurble,
		"rpmFlicker":          c.EnableRPMFlicker,
		"backfireThrottleMin": c.BackfireThrottleMin,
		"backfireReleaseMax":  c.BackfireReleaseMax,
		"brakeThrottleMin":    c.BrakeThrottleMin,
		"brakeThrottleMax":    c.BrakeThrottleMax,
		"rpmFlickerThreshold": c.RPMFlickerThreshold,
	}
}
