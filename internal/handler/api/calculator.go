package api

import (
	"reflect"
	"time"

	"github.com/labstack/echo/v4"

	"FinPWA/internal/service/ratelimit"
	xhttp "FinPWA/pkg/http"
	xlogger "FinPWA/pkg/logger"
)

const calcPrefix = "/-/calc"

// CalcMetrics records calculator requests.
type CalcMetrics interface {
	RecordCalculation(endpoint string, seconds float64, errCode string)
}

type CalculatorOption func(*CalculatorHandler)

func WithCalcMetrics(m CalcMetrics) CalculatorOption {
	return func(h *CalculatorHandler) { h.metrics = m }
}

// WithRateLimit limits calculator requests per remote address.
func WithRateLimit(l *ratelimit.Limiter, burst int, perSec float64) CalculatorOption {
	return func(h *CalculatorHandler) {
		h.limit = ratelimit.Middleware(l, burst, perSec)
	}
}

// CalculatorHandler serves every calculator at POST /-/calc/<name>.
type CalculatorHandler struct {
	logger    *xlogger.Logger
	presenter Presenter
	metrics   CalcMetrics
	limit     echo.MiddlewareFunc
}

func NewCalculatorHandler(logger *xlogger.Logger, presenter Presenter, opts ...CalculatorOption) *CalculatorHandler {
	h := &CalculatorHandler{logger: logger, presenter: presenter}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CalculatorHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group(calcPrefix)
	if h.limit != nil {
		g.Use(h.limit)
	}
	g.GET("", h.List)
	for _, calc := range Calculations() {
		g.POST("/"+calc.Name, h.handle(calc))
	}
}

// List returns the names of the available calculators.
func (h *CalculatorHandler) List(c echo.Context) error {
	calcs := Calculations()
	names := make([]string, len(calcs))
	for i, calc := range calcs {
		names[i] = calc.Name
	}
	return xhttp.SuccessResponse(c, names)
}

func (h *CalculatorHandler) handle(calc Calculation) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := calc.New()
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			h.record(calc.Name, start, "ERR_VALIDATION")
			return xhttp.ValidationResponse(c, verr)
		}

		result := calc.Run(req)
		if Absent(result) {
			h.record(calc.Name, start, xhttp.CodeInsufficientData)
			return xhttp.AppErrorResponse(c, xhttp.UnprocessableError(xhttp.CodeInsufficientData,
				"not enough data to compute "+calc.Name))
		}

		h.record(calc.Name, start, "")
		return xhttp.SuccessResponse(c, h.presenter.Present(result))
	}
}

func (h *CalculatorHandler) record(name string, start time.Time, code string) {
	if h.metrics != nil {
		h.metrics.RecordCalculation(name, time.Since(start).Seconds(), code)
	}
	if code != "" {
		h.logger.Debug("calculation rejected", xlogger.String("calculator", name), xlogger.String("code", code))
	}
}

// Absent reports whether a calculator produced no result.
func Absent(result any) bool {
	if result == nil {
		return true
	}
	v := reflect.ValueOf(result)
	switch v.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}
