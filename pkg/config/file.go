package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/afterfire/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		UnixSocket:     ptr.To("/var/run/afterfire.sock"),
		ListenAddress:  ptr.To(""),
		SettingsPath:   ptr.To("/var/lib/afterfire/settings.json"),
		TickIntervalMs: ptr.To(5),
		Device:         ptr.To(DeviceSerial),
		SerialPort:     ptr.To("/dev/ttyACM0"),
		BaudRate:       ptr.To(115200),
		Preview:        ptr.To(false),
		Seed:           ptr.To(uint64(0)),
		MQTT: &RawMQTTConfig{
			Broker:           ptr.To(""),
			TopicPrefix:      ptr.To("afterfire"),
			StatusIntervalMs: ptr.To(1000),
		},
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

type RawFileConfig struct {
	UnixSocket     *string        `yaml:"unixSocket,omitempty"`
	ListenAddress  *string        `yaml:"listenAddress,omitempty"`
	SettingsPath   *string        `yaml:"settingsPath,omitempty"`
	TickIntervalMs *int           `yaml:"tickIntervalMs,omitempty"`
	Device         *string        `yaml:"device,omitempty"`
	SerialPort     *string        `yaml:"serialPort,omitempty"`
	BaudRate       *int           `yaml:"baudRate,omitempty"`
	Preview        *bool          `yaml:"preview,omitempty"`
	Seed           *uint64        `yaml:"seed,omitempty"`
	MQTT           *RawMQTTConfig `yaml:"mqtt,omitempty"`
}

type RawMQTTConfig struct {
	Broker           *string `yaml:"broker,omitempty"`
	TopicPrefix      *string `yaml:"topicPrefix,omitempty"`
	StatusIntervalMs *int    `yaml:"statusIntervalMs,omitempty"`
}

func (f *File) raw() *RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}
	return f.c
}

func (f *File) mqtt() *RawMQTTConfig {
	if f.raw().MQTT == nil {
		return &RawMQTTConfig{}
	}
	return f.c.MQTT
}

func (f *File) UnixSocket() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().UnixSocket, *defaultFileConfig.UnixSocket)
}

func (f *File) ListenAddress() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().ListenAddress, *defaultFileConfig.ListenAddress)
}

func (f *File) SettingsPath() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().SettingsPath, *defaultFileConfig.SettingsPath)
}

// TickInterval falls back to the default for non-positive values.
func (f *File) TickInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ms := ptr.Deref(f.raw().TickIntervalMs, *defaultFileConfig.TickIntervalMs)
	if ms <= 0 {
		ms = *defaultFileConfig.TickIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (f *File) Device() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().Device, *defaultFileConfig.Device)
}

func (f *File) SerialPort() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().SerialPort, *defaultFileConfig.SerialPort)
}

func (f *File) BaudRate() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().BaudRate, *defaultFileConfig.BaudRate)
}

func (f *File) Preview() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().Preview, *defaultFileConfig.Preview)
}

func (f *File) Seed() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.raw().Seed, *defaultFileConfig.Seed)
}

func (f *File) MQTTBroker() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.mqtt().Broker, *defaultFileConfig.MQTT.Broker)
}

func (f *File) MQTTTopicPrefix() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.mqtt().TopicPrefix, *defaultFileConfig.MQTT.TopicPrefix)
}

func (f *File) MQTTStatusInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ms := ptr.Deref(f.mqtt().StatusIntervalMs, *defaultFileConfig.MQTT.StatusIntervalMs)
	if ms <= 0 {
		ms = *defaultFileConfig.MQTT.StatusIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (f *File) SetUnixSocket(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().UnixSocket = &s
}

func (f *File) SetListenAddress(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().ListenAddress = &s
}

func (f *File) SetDevice(s string) {
	if s != DeviceSerial && s != DeviceMock {
		panic("device must be serial or mock")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().Device = &s
}

func (f *File) SetSerialPort(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().SerialPort = &s
}

func (f *File) SetPreview(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().Preview = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file means all defaults. Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = yaml.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if conf.Device != nil && *conf.Device != DeviceSerial && *conf.Device != DeviceMock {
		return pkgerrors.Errorf("invalid device %q in %s: must be %s or %s", *conf.Device, f.filepath, DeviceSerial, DeviceMock)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	b, err := yaml.Marshal(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}

	if err := os.MkdirAll(filepath.Dir(f.filepath), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.filepath)
	}
	if err := os.WriteFile(f.filepath, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	fields := logrus.Fields{
		"unixSocket":    f.UnixSocket(),
		"listenAddress": f.ListenAddress(),
		"settingsPath":  f.SettingsPath(),
		"tickInterval":  f.TickInterval().String(),
		"device":        f.Device(),
		"preview":       f.Preview(),
		"seed":          f.Seed(),
		"mqttBroker":    f.MQTTBroker(),
	}
	if f.Device() == DeviceSerial {
		fields["serialPort"] = f.SerialPort()
		fields["baudRate"] = f.BaudRate()
	}
	return fields
}
