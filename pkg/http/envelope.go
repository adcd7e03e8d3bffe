package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every control-plane response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ListDataResponse wraps a list with its size.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// TimeRange is a from/to query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DataResponse writes the envelope. Control-plane answers are never cacheable,
// so a gateway or browser in front of the service cannot replay them.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// ValidationResponse answers 400 with the per-field details.
func ValidationResponse(c echo.Context, details []ValidationError) error {
	return DataResponse(c, http.StatusBadRequest, details)
}

// AppErrorResponse writes err as a one-element error list. Errors that are not
// an *AppError become a generic 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}
