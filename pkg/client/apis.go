package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/afterfire/pkg/calibration"
	"github.com/charlie0129/afterfire/pkg/engine"
	"github.com/charlie0129/afterfire/pkg/events"
	"github.com/charlie0129/afterfire/pkg/settings"
	"github.com/charlie0129/afterfire/pkg/throttle"
)

func getJSON[T any](c *Client, path, what string) (*T, error) {
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get %s", what)
	}
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

func (c *Client) GetStatus() (*engine.Status, error) {
	return getJSON[engine.Status](c, "/status", "status")
}

func (c *Client) GetSettings() (*settings.Settings, error) {
	return getJSON[settings.Settings](c, "/settings", "settings")
}

func (c *Client) GetCalibration() (*calibration.Status, error) {
	return getJSON[calibration.Status](c, "/calibration", "calibration status")
}

func (c *Client) GetCalibrationResults() (*throttle.Breakpoints, error) {
	return getJSON[throttle.Breakpoints](c, "/calibration/results", "calibration results")
}

func (c *Client) GetVersion() (string, error) {
	v, err := getJSON[string](c, "/version", "version")
	if err != nil {
		return "", err
	}
	return *v, nil
}

func (c *Client) StartCalibration() (*calibration.Status, error) {
	ret, err := c.Post("/calibration/start", "")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to start calibration")
	}
	var st calibration.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal calibration status")
	}
	return &st, nil
}

// Capture records the current pulse for step (neutral, throttle or brake).
// A capture rejected by the daemon comes back as a Result with Captured
// false and a nil error.
func (c *Client) Capture(step string) (calibration.Result, error) {
	ret, err := c.Post("/calibration/capture/"+step, "")
	var se *StatusError
	if err != nil && !(errors.As(err, &se) && se.Code == http.StatusBadRequest) {
		return calibration.Result{}, pkgerrors.Wrapf(err, "failed to capture %s", step)
	}

	var res calibration.Result
	if err := json.Unmarshal([]byte(ret), &res); err != nil {
		return calibration.Result{}, pkgerrors.Wrap(err, "failed to unmarshal capture result")
	}
	return res, nil
}

func (c *Client) CancelCalibration() (string, error) {
	return c.Post("/calibration/cancel", "")
}

func (c *Client) SetEffect(name string, enabled bool) (string, error) {
	return c.Put("/effects/"+name, strconv.FormatBool(enabled))
}

func (c *Client) SetThreshold(name string, value int) (string, error) {
	return c.Put("/thresholds/"+name, strconv.Itoa(value))
}

func (c *Client) TestEffect(name string) (string, error) {
	return c.Post("/test/"+name, "")
}

// Events streams daemon events until ctx is done or the daemon closes the
// stream. The returned channel is closed at the end.
func (c *Client) Events(ctx context.Context) (<-chan events.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to subscribe to events")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: resp.Status}
	}

	ch := make(chan events.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var ev events.Event
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if ev.Name == "" {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
				ev = events.Event{}
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.Data = append(ev.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()

	return ch, nil
}
