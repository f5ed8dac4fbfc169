package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler returns the central error handler for the Echo
// application.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *AppError
		if !errors.As(err, &appErr) {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				errType := TypeBadRequest
				if httpErr.Code == http.StatusNotFound || httpErr.Code == http.StatusMethodNotAllowed {
					errType = TypeUnknownRoute
				}
				_ = c.JSON(httpErr.Code, ErrorResponse(errType, fmt.Sprint(httpErr.Message)))
				return
			}

			logger.Error("Unhandled error occurred",
				"error_type", fmt.Sprintf("%T", err),
				slog.Any("error", err))
			_ = c.JSON(http.StatusInternalServerError, ErrorResponse(TypeInternal, "An unexpected internal error occurred."))
			return
		}

		if internalErr := appErr.Unwrap(); internalErr != nil {
			logger.Info("Error handled",
				"status_code", appErr.Code,
				"error_type", appErr.Type,
				slog.Any("internal_error", internalErr))
		}

		_ = c.JSON(appErr.Code, ErrorResponse(appErr.Type, appErr.Message))
	}
}
