package daemon

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/afterfire/pkg/calibration"
	"github.com/charlie0129/afterfire/pkg/device"
	"github.com/charlie0129/afterfire/pkg/effect"
	"github.com/charlie0129/afterfire/pkg/engine"
	"github.com/charlie0129/afterfire/pkg/events"
	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/pulse"
	"github.com/charlie0129/afterfire/pkg/settings"
	"github.com/charlie0129/afterfire/pkg/throttle"
	"github.com/charlie0129/afterfire/pkg/version"
)

type testDaemon struct {
	*Daemon
	cell   *pulse.Cell
	mock   *device.Mock
	router *gin.Engine
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	cell := pulse.NewCell()
	hub := events.NewHub()
	eng := engine.New(engine.Options{
		Source:    cell,
		Settings:  settings.Defaults(),
		Publisher: hub,
		Rand:      effect.NewRand(1),
	})
	mock := device.NewMock(nil, nil)
	d := New(eng, hub, nil, mock, 5*time.Millisecond)
	return &testDaemon{Daemon: d, cell: cell, mock: mock, router: d.setupRoutes()}
}

func (td *testDaemon) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	td.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestGetStatus(t *testing.T) {
	td := newTestDaemon(t)
	td.cell.Store(1400)

	w := td.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[engine.Status](t, w)
	assert.EqualValues(t, -100, st.ThrottlePercent)
	assert.EqualValues(t, 1400, st.PulseWidth)
	assert.Equal(t, "idle", st.CalibrationStepName)
	assert.False(t, st.BurstActive)
}

func TestGetVersion(t *testing.T) {
	td := newTestDaemon(t)
	w := td.do(http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, version.Version, decode[string](t, w))
}

func TestCalibrationEndpoints(t *testing.T) {
	td := newTestDaemon(t)

	w := td.do(http.MethodPost, "/calibration/capture/throttle", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	res := decode[calibration.Result](t, w)
	assert.False(t, res.Captured)
	assert.NotEmpty(t, res.Error)

	w = td.do(http.MethodPost, "/calibration/capture/sideways", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = td.do(http.MethodPost, "/calibration/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = td.do(http.MethodPost, "/calibration/start", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, calibration.StepNeutral, decode[calibration.Status](t, w).Step)

	steps := []struct {
		name  string
		width uint16
	}{
		{name: "neutral", width: 1500},
		{name: "throttle", width: 2000},
		{name: "brake", width: 1000},
	}
	for _, s := range steps {
		td.cell.Store(s.width)
		w = td.do(http.MethodPost, "/calibration/capture/"+s.name, "")
		require.Equal(t, http.StatusCreated, w.Code, s.name)
		assert.Equal(t, calibration.Result{Captured: true, Value: s.width}, decode[calibration.Result](t, w))
	}

	w = td.do(http.MethodGet, "/calibration", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[calibration.Status](t, w)
	assert.Equal(t, calibration.StepComplete, st.Step)
	assert.False(t, st.CanCancel)

	w = td.do(http.MethodGet, "/calibration/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, throttle.Breakpoints{
		NeutralMin: 1475, NeutralMax: 1525, MinPulse: 1000, NeutralPulse: 1500, MaxPulse: 2000,
	}, decode[throttle.Breakpoints](t, w))
}

func TestCancelCalibrationEndpoint(t *testing.T) {
	td := newTestDaemon(t)

	td.do(http.MethodPost, "/calibration/start", "")
	td.cell.Store(1500)
	td.do(http.MethodPost, "/calibration/capture/neutral", "")

	w := td.do(http.MethodPost, "/calibration/cancel", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, calibration.StepIdle, decode[calibration.Status](t, w).Step)
	assert.Equal(t, throttle.DefaultBreakpoints(), td.eng.Breakpoints())
}

func TestSetEffectEndpoint(t *testing.T) {
	td := newTestDaemon(t)

	tests := []struct {
		path string
		body string
		code int
	}{
		{path: "/effects/rpm", body: "false", code: http.StatusCreated},
		{path: "/effects/backfire", body: "false", code: http.StatusCreated},
		{path: "/effects/turbo", body: "true", code: http.StatusNotFound},
		{path: "/effects/idle", body: "maybe", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := td.do(http.MethodPut, tt.path, tt.body)
		assert.Equal(t, tt.code, w.Code, tt.path)
	}

	w := td.do(http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[settings.Settings](t, w)
	assert.False(t, s.Effects.EnableRPMFlicker)
	assert.False(t, s.Effects.EnableBackfire)
	assert.True(t, s.Effects.EnableIdleBurble)
}

func TestSetThresholdEndpoint(t *testing.T) {
	td := newTestDaemon(t)

	tests := []struct {
		path string
		body string
		code int
	}{
		{path: "/thresholds/backfireThrottleMin", body: "50", code: http.StatusCreated},
		{path: "/thresholds/brakeMax", body: "-40", code: http.StatusCreated},
		{path: "/thresholds/rpmFlickerThreshold", body: "101", code: http.StatusBadRequest},
		{path: "/thresholds/rpmFlickerThreshold", body: "-101", code: http.StatusBadRequest},
		{path: "/thresholds/rpmFlickerThreshold", body: "\"ten\"", code: http.StatusBadRequest},
		{path: "/thresholds/boost", body: "10", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		w := td.do(http.MethodPut, tt.path, tt.body)
		assert.Equal(t, tt.code, w.Code, "%s %s", tt.path, tt.body)
	}

	cfg := td.eng.Config()
	assert.EqualValues(t, 50, cfg.BackfireThrottleMin)
	assert.EqualValues(t, -40, cfg.BrakeThrottleMax)
	assert.EqualValues(t, 30, cfg.RPMFlickerThreshold)
}

func TestTestEffectEndpoint(t *testing.T) {
	td := newTestDaemon(t)

	w := td.do(http.MethodPost, "/test/smoke", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = td.do(http.MethodPost, "/test/crackle", "")
	require.Equal(t, http.StatusCreated, w.Code)
	st := td.eng.Status()
	assert.True(t, st.BurstActive)
	assert.Equal(t, 6, st.Burst.Remaining)
}

func TestTickOnceWritesColor(t *testing.T) {
	td := newTestDaemon(t)
	td.eng.StartCalibration()

	td.tickOnce(time.Now())
	assert.Equal(t, flame.Blue, td.mock.LastColor())
	assert.False(t, td.recorder.GetLastRecord().IsZero())
}

func TestStreamEvents(t *testing.T) {
	td := newTestDaemon(t)
	srv := httptest.NewServer(td.router)
	defer srv.Close()
	defer td.hub.Close()

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return td.hub.Subscribers() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, td.eng.SetEffect(effect.NameIdle, false))

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream ended early")
			if strings.HasPrefix(l, "event:") {
				assert.Equal(t, events.ConfigChanged, strings.TrimSpace(strings.TrimPrefix(l, "event:")))
				return
			}
		case <-timeout:
			t.Fatal("no event received")
		}
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method string
		code   int
		want   logrus.Level
	}{
		{method: http.MethodGet, code: http.StatusOK, want: logrus.TraceLevel},
		{method: http.MethodPut, code: http.StatusCreated, want: logrus.DebugLevel},
		{method: http.MethodPost, code: http.StatusConflict, want: logrus.WarnLevel},
		{method: http.MethodGet, code: http.StatusNotFound, want: logrus.WarnLevel},
		{method: http.MethodPut, code: http.StatusInternalServerError, want: logrus.ErrorLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requestLevel(tt.method, tt.code), "%s %d", tt.method, tt.code)
	}
}

func TestCheckMissedTicks(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		every  time.Duration
		behind bool
	}{
		{name: "on time", every: 5 * time.Millisecond, behind: false},
		{name: "slow", every: 8 * time.Millisecond, behind: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := newTestDaemon(t)
			var now time.Time
			for at := time.Duration(0); at < missedTickWindow; at += tt.every {
				now = start.Add(at)
				td.recorder.AddRecord(now)
			}
			assert.Equal(t, tt.behind, td.checkMissedTicks(now))
		})
	}
}

func TestReloadSettings(t *testing.T) {
	td := newTestDaemon(t)
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	defer store.Close()
	td.store = store

	want := settings.Defaults()
	want.Breakpoints.MaxPulse = 1950
	want.Effects.EnableIdleBurble = false
	require.NoError(t, store.Save(want))

	td.reloadSettings()
	assert.Equal(t, want, td.eng.Settings())

	// A damaged file leaves the running settings alone.
	require.NoError(t, os.WriteFile(store.Path(), []byte("{"), 0o644))
	td.reloadSettings()
	assert.Equal(t, want, td.eng.Settings())
}
