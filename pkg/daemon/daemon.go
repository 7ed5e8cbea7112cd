package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/afterfire/pkg/config"
	"github.com/charlie0129/afterfire/pkg/device"
	"github.com/charlie0129/afterfire/pkg/effect"
	"github.com/charlie0129/afterfire/pkg/engine"
	"github.com/charlie0129/afterfire/pkg/events"
	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/settings"
	"github.com/charlie0129/afterfire/pkg/telemetry"
)

// Daemon ties the engine to its device, the settings store and the HTTP API.
type Daemon struct {
	eng   *engine.Engine
	hub   *events.Hub
	store *settings.Store
	dev   device.Device

	recorder     *TimeSeriesRecorder
	lastWriteErr time.Time
}

// New wires a daemon around an existing engine. store may be nil in tests.
func New(eng *engine.Engine, hub *events.Hub, store *settings.Store, dev device.Device, tickInterval time.Duration) *Daemon {
	expected := int(missedTickWindow / tickInterval)
	return &Daemon{
		eng:      eng,
		hub:      hub,
		store:    store,
		dev:      dev,
		recorder: NewTimeSeriesRecorder(2*expected+1, tickInterval),
	}
}

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	router.GET("/status", d.getStatus)
	router.GET("/settings", d.getSettings)
	router.GET("/version", getVersion)
	router.GET("/events", d.streamEvents)

	router.GET("/calibration", d.getCalibration)
	router.GET("/calibration/results", d.getCalibrationResults)
	router.POST("/calibration/start", d.startCalibration)
	router.POST("/calibration/capture/:step", d.captureCalibration)
	router.POST("/calibration/cancel", d.cancelCalibration)

	router.PUT("/effects/:name", d.setEffect)
	router.PUT("/thresholds/:name", d.setThreshold)
	router.POST("/test/:effect", d.testEffect)

	return router
}

func openDevice(conf config.Config) (device.Device, error) {
	var dev device.Device
	switch conf.Device() {
	case config.DeviceMock:
		logrus.Info("using simulated transmitter")
		dev = device.NewMock(nil, nil)
	default:
		s, err := device.OpenSerial(conf.SerialPort(), conf.BaudRate())
		if err != nil {
			return nil, err
		}
		dev = s
	}
	if conf.Preview() {
		dev = device.NewTerminal(dev, os.Stdout)
	}
	return dev, nil
}

func listenUnix(path string, allowNonRoot bool) (net.Listener, error) {
	// A socket left behind by a crashed daemon would make Listen fail.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, pkgerrors.Wrapf(err, "failed to remove stale socket %s", path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to listen on %s", path)
	}
	if allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", path)
		if err := os.Chmod(path, 0777); err != nil {
			_ = l.Close()
			return nil, pkgerrors.Wrapf(err, "failed to chmod %s", path)
		}
	}
	return l, nil
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(conf config.Config, allowNonRoot bool) error {
	store := settings.NewStore(conf.SettingsPath())
	st := store.LoadOrDefaults()

	dev, err := openDevice(conf)
	if err != nil {
		_ = store.Close()
		return err
	}

	seed := conf.Seed()
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	hub := events.NewHub()
	eng := engine.New(engine.Options{
		Source:    dev,
		Settings:  st,
		Persister: store,
		Publisher: hub,
		Rand:      effect.NewRand(seed),
	})
	d := New(eng, hub, store, dev, conf.TickInterval())

	router := d.setupRoutes()
	srv := &http.Server{Handler: router}

	var listeners []net.Listener
	ul, err := listenUnix(conf.UnixSocket(), allowNonRoot)
	if err != nil {
		_ = dev.Close()
		_ = store.Close()
		return err
	}
	listeners = append(listeners, ul)
	if addr := conf.ListenAddress(); addr != "" {
		tl, err := net.Listen("tcp", addr)
		if err != nil {
			_ = ul.Close()
			_ = dev.Close()
			_ = store.Close()
			return pkgerrors.Wrapf(err, "failed to listen on %s", addr)
		}
		listeners = append(listeners, tl)
	}

	for _, l := range listeners {
		go func(l net.Listener) {
			logrus.Infof("http server listening on %s", l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatal(err)
			}
		}(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	var reporter *telemetry.Reporter
	if broker := conf.MQTTBroker(); broker != "" {
		reporter, err = telemetry.Connect(broker, conf.MQTTTopicPrefix())
		if err != nil {
			// Telemetry is optional, the flame keeps running without it.
			logrus.WithError(err).Warn("mqtt telemetry disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				reporter.Run(ctx, hub, func() any { return eng.Status() }, conf.MQTTStatusInterval())
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runLoop(ctx)
	}()

	// Receive SIGHUP to reload persisted settings
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			d.reloadSettings()
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	// Ends open event streams, otherwise Shutdown waits for them.
	hub.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("stopping tick loop")
	cancel()
	wg.Wait()

	if reporter != nil {
		reporter.Close()
	}

	d.shutdown()

	logrus.Info("exiting")
	return nil
}

// reloadSettings replaces the engine settings with what is on disk.
func (d *Daemon) reloadSettings() {
	if d.store == nil {
		return
	}
	log := logrus.WithField("path", d.store.Path())
	st, err := d.store.Load()
	if err != nil {
		log.WithError(err).Error("failed to reload settings, keeping current ones")
		return
	}
	d.eng.ApplySettings(st)
	log.Info("settings reloaded")
}

// shutdown turns the light off and flushes pending settings.
func (d *Daemon) shutdown() {
	if err := d.dev.WriteColor(flame.Black); err != nil {
		logrus.Errorf("failed to turn off light before exiting: %v", err)
	}
	logrus.Info("closing device")
	if err := d.dev.Close(); err != nil {
		logrus.Errorf("failed to close device: %v", err)
	}
	if d.store != nil {
		logrus.Info("flushing settings")
		if err := d.store.Close(); err != nil {
			logrus.Errorf("failed to flush settings: %v", err)
		}
	}
}
