package middleware

import (
	"time"

	applogger "FinPWA/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every request at debug level with the gateway source.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req, res := c.Request(), c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes", res.Size),
				applogger.Duration("took", time.Since(start)),
			}
			if src := res.Header().Get(SourceHeader); src != "" {
				fields = append(fields, applogger.String("source", src))
			}
			if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
				fields = append(fields, applogger.String("mode", mode))
			}
			if err != nil {
				fields = append(fields, applogger.Error(err))
			}
			l.Debug("http request", fields...)
			return err
		}
	}
}
