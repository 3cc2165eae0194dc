package http

import (
	"errors"
	"net/http"

	"LatentTrader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope every endpoint answers with. Status always
// equals the HTTP status code.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"product"`
	Message string                 `json:"message,omitempty" example:"product is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// AcceptedResponse answers requests whose work was queued.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return DataResponse(c, http.StatusBadRequest, errs)
}

// AppErrorResponse writes err as a one-element error list. Errors that
// are not AppErrors become an opaque 500.
func AppErrorResponse(c echo.Context, err error) error {
	appErr := AsAppError(err)
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}

// errorHandler renders errors escaping handlers, unknown routes and
// disallowed methods included, in the same envelope.
func errorHandler(l *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			err = newAppError(he.Code, "ERR_HTTP", msg)
		}
		appErr := AsAppError(err)
		if appErr.Status >= http.StatusInternalServerError {
			l.Error("unhandled http error", logger.String("path", c.Path()), logger.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(appErr.Status)
			return
		}
		_ = AppErrorResponse(c, appErr)
	}
}
