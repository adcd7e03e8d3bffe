package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	applogger "FinPWA/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into an error response. Gateway paths get a
// 503 tagged as offline, the same answer a page sees when the origin is down.
// The control plane gets a 500 envelope.
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
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				path := c.Request().URL.Path
				l.Error("panic recovered",
					applogger.Error(perr),
					applogger.String("path", path),
					applogger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				if strings.HasPrefix(path, "/-/") {
					err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"status":  http.StatusInternalServerError,
						"message": http.StatusText(http.StatusInternalServerError),
					})
					return
				}
				c.Response().Header().Set(SourceHeader, "offline")
				err = c.String(http.StatusServiceUnavailable, "offline")
			}()
			return next(c)
		}
	}
}
