package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/metrics"
)

// AccessLog writes one zerolog line per request and records the HTTP
// metrics.  Routes are labelled by their template, not the raw path.
func AccessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			elapsed := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := res.Status
			metrics.HTTPRequests.WithLabelValues(req.Method, route, statusClass(status)).Inc()
			metrics.HTTPDuration.WithLabelValues(req.Method, route).Observe(elapsed.Seconds())

			var ev *zerolog.Event
			switch {
			case status >= 500:
				ev = log.Error()
			case status >= 400:
				ev = log.Warn()
			default:
				ev = log.Info()
			}
			rid, _ := c.Get("request_id").(string)
			ev.Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", route).
				Int("status", status).
				Int64("bytes", res.Size).
				Dur("latency", elapsed).
				Str("ip", c.RealIP()).
				Str("user_id", currentUserID(c)).
				Msg("request")
			return nil
		}
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
