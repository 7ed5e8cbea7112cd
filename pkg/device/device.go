// Package device connects the engine to the outside world on the host: it
// supplies pulse widths and receives the output color.
package device

import (
	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/pulse"
)

// Device is both the signal-capture and light-output collaborator.
type Device interface {
	pulse.Source
	WriteColor(flame.RGB) error
	Close() error
}
