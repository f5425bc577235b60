package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GinLogrusLogger logs one line per request. Streaming routes log when the
// stream ends, so latency there is the lifetime of the stream.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		entry := logrus.WithFields(logrus.Fields{
			"status":  status,
			"latency": latency.Round(time.Millisecond),
			"client":  c.ClientIP(),
		})
		msg := fmt.Sprintf("%s %s", c.Request.Method, path)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			msg = msg + " | " + errs
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}

// GinLogrusRecovery logs handler panics with their stack. respond writes the
// 500 body; without it, or once the response has started, the request is
// only aborted.
func GinLogrusRecovery(respond func(c *gin.Context, recovered any)) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logrus.WithFields(logrus.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
		}).Error("recovered from panic")
		if respond == nil || c.Writer.Written() {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		respond(c, recovered)
		c.Abort()
	})
}
