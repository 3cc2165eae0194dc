package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "LatentTrader/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge
)

func initMetrics() {
	metricsOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "latenttrader_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"})
		httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "latenttrader_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"route", "method"})
		httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "latenttrader_http_in_flight_requests",
			Help: "Requests currently being served",
		})
	})
}

// Metrics records request metrics labelled by the route template, so
// label cardinality stays bounded by the number of registered routes.
// Errors are rendered here so the recorded status is the one sent.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	initMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			code := c.Response().Status
			took := time.Since(start)
			httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			httpRequestDuration.WithLabelValues(route, method).Observe(took.Seconds())

			switch {
			case code >= 500:
				l.Error("http request failed",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", code),
					applogger.Duration("took", took))
			case slowThreshold > 0 && took >= slowThreshold:
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", code),
					applogger.Duration("took", took))
			}
			return nil
		}
	}
}
