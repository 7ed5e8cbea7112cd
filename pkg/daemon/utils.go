package daemon

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// requestLevel picks the log level for a finished request. Status polling
// is frequent, so successful reads only show up at trace level.
func requestLevel(method string, statusCode int) logrus.Level {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return logrus.ErrorLevel
	case statusCode >= http.StatusBadRequest:
		return logrus.WarnLevel
	case method == http.MethodGet:
		return logrus.TraceLevel
	default:
		return logrus.DebugLevel
	}
}

// ginLogger logs each request with logrus. Event streams are logged when
// they end, with their full duration as latency.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Handlers may rewrite the path.
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		latency := time.Since(start).Round(time.Millisecond)

		size := c.Writer.Size()
		if size < 0 {
			size = 0
		}
		status := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"statusCode": status,
			"latency":    latency.Milliseconds(),
			"method":     c.Request.Method,
			"path":       path,
			"route":      c.FullPath(),
			"dataLength": size,
		})

		msg := fmt.Sprintf("%s %s %d (%s)", c.Request.Method, path, status, latency)
		if len(c.Errors) > 0 {
			msg = c.Errors.ByType(gin.ErrorTypePrivate).String()
		}
		entry.Log(requestLevel(c.Request.Method, status), msg)
	}
}
