package config

import "time"

// Device kinds.
const (
	DeviceSerial = "serial"
	DeviceMock   = "mock"
)

// Config is the daemon runtime configuration. Engine settings (breakpoints,
// effect switches and thresholds) are not part of it, they live in the
// settings store.
type Config interface {
	UnixSocket() string
	ListenAddress() string
	SettingsPath() string
	TickInterval() time.Duration
	Device() string
	SerialPort() string
	BaudRate() int
	Preview() bool
	// Seed returns 0 when the random source should be seeded from the clock.
	Seed() uint64
	MQTTBroker() string
	MQTTTopicPrefix() string
	MQTTStatusInterval() time.Duration

	SetUnixSocket(string)
	SetListenAddress(string)
	SetDevice(string)
	SetSerialPort(string)
	SetPreview(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
