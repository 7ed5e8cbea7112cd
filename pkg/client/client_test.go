package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/afterfire/pkg/events"
)

func TestClientAgainstFakeDaemon(t *testing.T) {
	var gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"throttlePercent":-100,"burstActive":true,"calibrationStepName":"idle","pulseWidth":1400}`)
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `"v1.2.3"`)
	})
	mux.HandleFunc("/thresholds/rpmThreshold", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `"ok"`)
	})
	mux.HandleFunc("/calibration/capture/throttle", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"captured":false,"error":"wrong step"}`)
	})
	mux.HandleFunc("/calibration/capture/neutral", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"captured":true,"value":1916}`)
	})
	mux.HandleFunc("/calibration/cancel", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `"calibration not running"`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewTCPClient(srv.URL)

	st, err := c.GetStatus()
	require.NoError(t, err)
	assert.EqualValues(t, -100, st.ThrottlePercent)
	assert.True(t, st.BurstActive)

	v, err := c.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", v)

	_, err = c.SetThreshold("rpmThreshold", -5)
	require.NoError(t, err)
	assert.Equal(t, "-5", gotBody)

	res, err := c.Capture("throttle")
	require.NoError(t, err)
	assert.False(t, res.Captured)
	assert.Equal(t, "wrong step", res.Error)

	res, err = c.Capture("neutral")
	require.NoError(t, err)
	assert.True(t, res.Captured)
	assert.EqualValues(t, 1916, res.Value)

	_, err = c.CancelCalibration()
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.Code)

	_, err = c.TestEffect("smoke")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.GetStatus()
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:burst.armed\ndata:{\"trigger\":\"backfire\",\"flashes\":4}\n\n")
		fmt.Fprint(w, "event:config.changed\ndata:{\"name\":\"rpm\"}\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := NewTCPClient(srv.URL).Events(ctx)
	require.NoError(t, err)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, events.BurstArmed, got[0].Name)
	p, err := events.DecodeAs[events.BurstArmedEvent](got[0])
	require.NoError(t, err)
	assert.Equal(t, "backfire", p.Trigger)
	assert.Equal(t, 4, p.Flashes)
	assert.Equal(t, events.ConfigChanged, got[1].Name)
}
