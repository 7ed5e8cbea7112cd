package events

import "encoding/json"

// Event names.
const (
	CalibrationStep = "calibration.step"
	BurstArmed      = "burst.armed"
	ConfigChanged   = "config.changed"
)

// Publisher is implemented by Hub and by anything that forwards events.
type Publisher interface {
	Publish(name string, payload any)
}

var _ Publisher = &Hub{}

// Event is a generic SSE event from the daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// CalibrationStepEvent is the payload for calibration.step.
type CalibrationStepEvent struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Pulse uint16 `json:"pulse,omitempty"`
	Ts    int64  `json:"ts"`
}

// BurstArmedEvent is the payload for burst.armed.
type BurstArmedEvent struct {
	Trigger   string `json:"trigger"`
	Flashes   int    `json:"flashes"`
	Intensity uint8  `json:"intensity"`
	Throttle  int8   `json:"throttle"`
	Ts        int64  `json:"ts"`
}

// ConfigChangedEvent is the payload for config.changed. Exactly one of
// Enabled or Value is set.
type ConfigChangedEvent struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled,omitempty"`
	Value   *int8  `json:"value,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into T. It ignores the event name.
// Empty Data yields the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.BurstArmedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Trigger, payload.Flashes)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
