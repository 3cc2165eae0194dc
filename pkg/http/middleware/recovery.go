package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "LatentTrader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 passed to the error handler.
// The stack goes to the log, never to the client.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				l.Error("http handler panic",
					applogger.String("route", c.Path()),
					applogger.String("request_id", requestID(c)),
					applogger.Any("panic", r),
					applogger.String("stack", string(debug.Stack())))
				err = echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error").
					SetInternal(fmt.Errorf("panic: %v", r))
			}()
			return next(c)
		}
	}
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
