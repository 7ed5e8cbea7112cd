package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/afterfire/pkg/client"
	"github.com/charlie0129/afterfire/pkg/events"
)

func init() {
	color.NoColor = true
}

// fakeDaemon answers calibration requests and records the paths it saw.
type fakeDaemon struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	switch r.URL.Path {
	case "/calibration/start":
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"step":"neutral","stepName":"neutral","canCancel":true}`)
	case "/calibration/capture/neutral", "/calibration/capture/throttle", "/calibration/capture/brake":
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"captured":true,"value":1500}`)
	case "/calibration/cancel":
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"step":"idle","stepName":"idle"}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDaemon) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func withFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	fd := &fakeDaemon{}
	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)
	apiClient = client.NewTCPClient(srv.URL)
	return fd
}

func TestWizardCapturesAllSteps(t *testing.T) {
	fd := withFakeDaemon(t)

	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)

	require.NoError(t, runWizard(cmd, strings.NewReader("\n\n\n")))
	assert.Equal(t, []string{
		"/calibration/start",
		"/calibration/capture/neutral",
		"/calibration/capture/throttle",
		"/calibration/capture/brake",
	}, fd.seen())
	assert.Contains(t, out.String(), "Calibration complete.")
}

func TestWizardCancel(t *testing.T) {
	fd := withFakeDaemon(t)

	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)

	require.NoError(t, runWizard(cmd, strings.NewReader("\nq\n")))
	assert.Equal(t, []string{
		"/calibration/start",
		"/calibration/capture/neutral",
		"/calibration/cancel",
	}, fd.seen())
	assert.Contains(t, out.String(), "canceled")
}

func TestWizardInputClosed(t *testing.T) {
	fd := withFakeDaemon(t)

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	assert.Error(t, runWizard(cmd, strings.NewReader("")))
	assert.Equal(t, []string{"/calibration/start", "/calibration/cancel"}, fd.seen())
}

func TestParseIntArg(t *testing.T) {
	v, err := parseIntArg([]string{"-40"}, "threshold")
	require.NoError(t, err)
	assert.Equal(t, -40, v)

	_, err = parseIntArg([]string{"forty"}, "threshold")
	assert.Error(t, err)
	_, err = parseIntArg(nil, "threshold")
	assert.Error(t, err)
}

func TestThrottleBar(t *testing.T) {
	assert.Equal(t, "[    |    ]", throttleBar(0, 4))
	assert.Equal(t, "[    |██  ]", throttleBar(50, 4))
	assert.Equal(t, "[████|    ]", throttleBar(-100, 4))
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		ev   events.Event
		want string
	}{
		{
			ev:   events.Event{Name: events.BurstArmed, Data: []byte(`{"trigger":"backfire","flashes":4,"intensity":200,"throttle":10}`)},
			want: "burst backfire: 4 flashes at 200 (throttle +10%)",
		},
		{
			ev:   events.Event{Name: events.CalibrationStep, Data: []byte(`{"from":"neutral","to":"throttle","pulse":1500}`)},
			want: "calibration neutral -> throttle (1500 µs)",
		},
		{
			ev:   events.Event{Name: events.ConfigChanged, Data: []byte(`{"name":"brakeMax","value":-30}`)},
			want: "config brakeMax = -30%",
		},
		{
			ev:   events.Event{Name: "something.else", Data: []byte(`{}`)},
			want: "something.else {}",
		},
	}
	for _, tt := range tests {
		assert.Contains(t, formatEvent(tt.ev), tt.want)
	}
}

func TestEnableDisableCommand(t *testing.T) {
	var got []bool
	cmd := newEnableDisableCommand("rpm", "RPM glow", func(enabled bool) (string, error) {
		got = append(got, enabled)
		return `"ok"`, nil
	})
	cmd.SetOut(&bytes.Buffer{})

	cmd.SetArgs([]string{"enable"})
	require.NoError(t, cmd.Execute())
	cmd.SetArgs([]string{"disable"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, []bool{true, false}, got)

	cmd.SetArgs([]string{"enable", "now"})
	assert.Error(t, cmd.Execute())
}
