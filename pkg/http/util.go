package http

import (
	"time"

	xutil "FinPWA/pkg/util"

	"github.com/labstack/echo/v4"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// QueryTimeRange reads the from/to query params, defaulting to the last window.
func QueryTimeRange(c echo.Context, window time.Duration) TimeRange {
	from, to := xutil.TimeRange(c.QueryParam("from"), c.QueryParam("to"), window, time.Now())
	return TimeRange{From: from, To: to}
}
