package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/model"
	"devcamper-api/internal/store"
)

// Classify maps an error to the response status and client-facing message.
func Classify(err error) (int, string) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal {
			return http.StatusInternalServerError, "Server Error"
		}
		return ae.Status(), ae.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		case nil:
		default:
			msg = fmt.Sprint(m)
		}
		return he.Code, msg
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidID):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusBadRequest, "Duplicate field value entered"
	}
	return http.StatusInternalServerError, "Server Error"
}

// ErrorHandler returns the terminal error stage. It writes every error as
// {"success": false, "error": message}. Server errors are logged with their
// cause; in development, client errors are logged at debug level too.
func ErrorHandler(logger *slog.Logger, development bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := Classify(err)
		attrs := []any{
			"status", status,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		case development:
			logger.Debug("request rejected", attrs...)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, model.Fail(msg))
		}
		if werr != nil {
			logger.Error("failed to write error response", "error", werr)
		}
	}
}
