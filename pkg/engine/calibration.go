package engine

import (
	"time"

	"github.com/charlie0129/afterfire/pkg/calibration"
	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/throttle"
)

// StartCalibration begins the capture sequence. Effects stop and the
// output turns blue from the next tick on.
func (e *Engine) StartCalibration() calibration.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.cal.Step()
	e.cal.Start(e.bp)
	e.completeUntil = time.Time{}
	e.publishStep(from, e.cal.Step(), 0)
	return e.cal.Status(e.bp)
}

func (e *Engine) CaptureNeutral() calibration.Result {
	return e.capture(e.cal.CaptureNeutral)
}

func (e *Engine) CaptureThrottle() calibration.Result {
	return e.capture(e.cal.CaptureThrottle)
}

func (e *Engine) CaptureBrake() calibration.Result {
	return e.capture(e.cal.CaptureBrake)
}

// CancelCalibration aborts a running sequence and restores the breakpoints
// from before it started.
func (e *Engine) CancelCalibration() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.cal.Step()
	if err := e.cal.Cancel(&e.bp); err != nil {
		return err
	}
	e.fx.Color = flame.Black
	e.publishStep(from, e.cal.Step(), 0)
	return nil
}

func (e *Engine) CalibrationStatus() calibration.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cal.Status(e.bp)
}

// capture reads the pulse at call time and hands it to one capture step.
func (e *Engine) capture(step func(uint16, *throttle.Breakpoints) error) calibration.Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.src.ReadPulseWidth()
	from := e.cal.Step()
	if err := step(p, &e.bp); err != nil {
		return calibration.Result{Captured: false, Error: err.Error()}
	}
	e.publishStep(from, e.cal.Step(), p)
	return calibration.Result{Captured: true, Value: p}
}
