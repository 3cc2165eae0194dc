package middleware

import (
	"time"

	applogger "LatentTrader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging writes one debug line per request. It is skipped
// entirely when debug logging is off.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.DebugEnabled() {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			req := c.Request()
			l.Debug("http request",
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.String("request_id", requestID(c)),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency", time.Since(start)))
			return err
		}
	}
}
