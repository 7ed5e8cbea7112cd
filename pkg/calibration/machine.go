package calibration

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/afterfire/pkg/throttle"
)

var (
	ErrWrongStep   = &calibrationError{"wrong calibration step"}
	ErrNotRunning  = &calibrationError{"calibration not running"}
	ErrNotComplete = &calibrationError{"calibration not complete"}
)

type calibrationError struct{ msg string }

func (e *calibrationError) Error() string { return e.msg }

// SequenceError is returned when a capture is issued outside its step.
// The machine state is left untouched.
type SequenceError struct {
	Expected Step
	Actual   Step
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("wrong step (expected %s, currently %s)", e.Expected, e.Actual)
}

func (e *SequenceError) Is(target error) bool {
	return target == ErrWrongStep
}

// Machine is the calibration state machine:
//
//	Idle -Start-> Neutral -CaptureNeutral-> Throttle -CaptureThrottle->
//	Brake -CaptureBrake-> Complete -Finish-> Idle
//
// There is no timeout; each step waits for the operator indefinitely.
// It is not safe for concurrent use; the engine serializes access.
type Machine struct {
	step     Step
	snapshot throttle.Breakpoints

	// persist is called by CaptureBrake after the full breakpoint set is
	// known and before entering Complete.
	persist func(throttle.Breakpoints)
}

// NewMachine returns an idle machine. persist may be nil.
func NewMachine(persist func(throttle.Breakpoints)) *Machine {
	return &Machine{step: StepIdle, persist: persist}
}

func (m *Machine) Step() Step {
	return m.step
}

// Start begins (or restarts) the sequence and remembers bp so Cancel can
// restore it.
func (m *Machine) Start(bp throttle.Breakpoints) {
	logrus.WithField("from", m.step).Info("starting calibration, waiting for neutral capture")
	if !m.step.Capturing() {
		m.snapshot = bp
	}
	m.step = StepNeutral
}

// CaptureNeutral records the neutral pulse and a ±25µs dead zone around it.
func (m *Machine) CaptureNeutral(pulse uint16, bp *throttle.Breakpoints) error {
	if err := m.expect(StepNeutral); err != nil {
		return err
	}

	bp.NeutralPulse = pulse
	bp.NeutralMin = subSat(pulse, throttle.DeadZone)
	bp.NeutralMax = addSat(pulse, throttle.DeadZone)
	m.step = StepThrottle

	logrus.WithFields(logrus.Fields{
		"neutral":    pulse,
		"neutralMin": bp.NeutralMin,
		"neutralMax": bp.NeutralMax,
	}).Info("neutral captured, waiting for throttle capture")
	return nil
}

// CaptureThrottle records the full-throttle pulse.
func (m *Machine) CaptureThrottle(pulse uint16, bp *throttle.Breakpoints) error {
	if err := m.expect(StepThrottle); err != nil {
		return err
	}

	bp.MaxPulse = pulse
	m.step = StepBrake

	logrus.WithField("throttle", pulse).Info("throttle captured, waiting for brake capture")
	return nil
}

// CaptureBrake records the full-brake pulse, requests persistence of the
// whole breakpoint set and completes the sequence.
func (m *Machine) CaptureBrake(pulse uint16, bp *throttle.Breakpoints) error {
	if err := m.expect(StepBrake); err != nil {
		return err
	}

	bp.MinPulse = pulse

	log := logrus.WithFields(bp.LogrusFields())
	if !bp.Valid() {
		log.Warn("calibrated breakpoints are out of order, throttle mapping may be unusable")
	}
	if m.persist != nil {
		m.persist(*bp)
	}
	m.step = StepComplete

	log.Info("calibration complete")
	return nil
}

// Finish leaves Complete after its display cycle.
func (m *Machine) Finish() error {
	if m.step != StepComplete {
		return ErrNotComplete
	}
	m.step = StepIdle
	return nil
}

// Cancel aborts a capture sequence and restores the breakpoints that were
// active when Start was called.
func (m *Machine) Cancel(bp *throttle.Breakpoints) error {
	if !m.step.Capturing() {
		return ErrNotRunning
	}

	logrus.WithField("step", m.step).Info("calibration canceled, restoring previous breakpoints")
	*bp = m.snapshot
	m.step = StepIdle
	return nil
}

// Status builds the view model.
func (m *Machine) Status(bp throttle.Breakpoints) Status {
	return Status{
		Step:        m.step,
		StepName:    m.step.String(),
		Breakpoints: bp,
		CanCancel:   m.step.Capturing(),
	}
}

func (m *Machine) expect(s Step) error {
	if m.step != s {
		logrus.WithFields(logrus.Fields{
			"expected": s,
			"current":  m.step,
		}).Warn("capture issued in wrong calibration step")
		return &SequenceError{Expected: s, Actual: m.step}
	}
	return nil
}

func subSat(a, b uint16) uint16 {
	if a < b {
		return 0
	}
	return a - b
}

func addSat(a, b uint16) uint16 {
	if uint32(a)+uint32(b) > math.MaxUint16 {
		return math.MaxUint16
	}
	return a + b
}
