package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// InitSentry configures the global Sentry client. An empty DSN disables
// reporting and returns false.
func InitSentry(dsn, environment, release string) (bool, error) {
	if dsn == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, fmt.Errorf("initializing sentry: %w", err)
	}
	return true, nil
}

// FlushSentry waits for buffered events before shutdown
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Recovery turns panics into 500 {"detail":"Internal Server Error"}, logs
// the stack and reports to Sentry when enabled.
func Recovery(logger *logrus.Logger, reportToSentry bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			logger.WithFields(logrus.Fields{
				"request_id": c.GetString(RequestIDKey),
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"panic":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
			}).Error("Recovered from panic")

			if reportToSentry {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(c.Request)
				hub.Scope().SetTag("request_id", c.GetString(RequestIDKey))
				hub.Recover(rec)
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		}()
		c.Next()
	}
}
