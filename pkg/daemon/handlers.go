package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlie0129/afterfire/pkg/calibration"
	"github.com/charlie0129/afterfire/pkg/effect"
	"github.com/charlie0129/afterfire/pkg/engine"
	"github.com/charlie0129/afterfire/pkg/version"
)

func abortWithError(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (d *Daemon) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.eng.Status())
}

func (d *Daemon) getSettings(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.eng.Settings())
}

func (d *Daemon) getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.eng.CalibrationStatus())
}

func (d *Daemon) getCalibrationResults(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.eng.Breakpoints())
}

func (d *Daemon) startCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusCreated, d.eng.StartCalibration())
}

func (d *Daemon) captureCalibration(c *gin.Context) {
	var res calibration.Result
	switch step := c.Param("step"); step {
	case calibration.StepNeutral.String():
		res = d.eng.CaptureNeutral()
	case calibration.StepThrottle.String():
		res = d.eng.CaptureThrottle()
	case calibration.StepBrake.String():
		res = d.eng.CaptureBrake()
	default:
		abortWithError(c, http.StatusNotFound, fmt.Errorf("unknown capture step %q", step))
		return
	}

	if !res.Captured {
		c.IndentedJSON(http.StatusBadRequest, res)
		_ = c.Error(errors.New(res.Error))
		c.Abort()
		return
	}
	c.IndentedJSON(http.StatusCreated, res)
}

func (d *Daemon) cancelCalibration(c *gin.Context) {
	if err := d.eng.CancelCalibration(); err != nil {
		abortWithError(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, d.eng.CalibrationStatus())
}

func (d *Daemon) setEffect(c *gin.Context) {
	var enabled bool
	if err := c.BindJSON(&enabled); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := d.eng.SetEffect(c.Param("name"), enabled); err != nil {
		if errors.Is(err, effect.ErrUnknownEffect) {
			abortWithError(c, http.StatusNotFound, fmt.Errorf("%w: %s", err, c.Param("name")))
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (d *Daemon) setThreshold(c *gin.Context) {
	var v int
	if err := c.BindJSON(&v); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if v < -100 || v > 100 {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("threshold must be between -100 and 100, got %d", v))
		return
	}

	if err := d.eng.SetThreshold(c.Param("name"), int8(v)); err != nil {
		if errors.Is(err, effect.ErrUnknownThreshold) {
			abortWithError(c, http.StatusNotFound, fmt.Errorf("%w: %s", err, c.Param("name")))
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (d *Daemon) testEffect(c *gin.Context) {
	if err := d.eng.TestBurst(c.Param("effect")); err != nil {
		if errors.Is(err, engine.ErrUnknownTest) {
			abortWithError(c, http.StatusNotFound, fmt.Errorf("%w: %s", err, c.Param("effect")))
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "ok")
}

// streamEvents relays hub events as server-sent events until the client
// goes away or the hub is closed.
func (d *Daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}
