package calibration

import (
	"encoding/json"
	"fmt"

	"github.com/charlie0129/afterfire/pkg/throttle"
)

// Step defines steps for calibration.
type Step int

const (
	StepIdle Step = iota
	StepNeutral
	StepThrottle
	StepBrake
	StepComplete
)

var stepNames = map[Step]string{
	StepIdle:     "idle",
	StepNeutral:  "neutral",
	StepThrottle: "throttle",
	StepBrake:    "brake",
	StepComplete: "complete",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Capturing reports whether the step is waiting for an operator capture.
// Flame effects are bypassed while capturing.
func (s Step) Capturing() bool {
	return s == StepNeutral || s == StepThrottle || s == StepBrake
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Step) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for k, v := range stepNames {
		if v == name {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown calibration step %q", name)
}

// Result is returned by every capture call.
type Result struct {
	Captured bool   `json:"captured"`
	Value    uint16 `json:"value"`
	Error    string `json:"error,omitempty"`
}

// Status is a view model exposed via HTTP and used by the CLI.
type Status struct {
	Step        Step                 `json:"step"`
	StepName    string               `json:"stepName"`
	Breakpoints throttle.Breakpoints `json:"breakpoints"`
	CanCancel   bool                 `json:"canCancel"`
}
