package handlers

import (
	"context"
	"errors"
	"net/http"

	"loggerctl/command"
	"loggerctl/control"
	"loggerctl/redis"
	"loggerctl/services"
)

// StandardResponse represents a standard API response
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Type    string      `json:"type,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SuccessResponse creates a success response
func SuccessResponse(message string, data interface{}) StandardResponse {
	return StandardResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}
}

// ErrorResponse creates an error response
func ErrorResponse(errType, message string) StandardResponse {
	return StandardResponse{
		Status:  "error",
		Type:    errType,
		Message: message,
	}
}

// Error types reported in the "type" field.
const (
	TypeValidation   = "validation"
	TypeNotFound     = "not_found"
	TypeBusy         = "busy"
	TypeConnectivity = "connectivity"
	TypeProtocol     = "protocol_violation"
	TypeTimeout      = "no_response"
	TypeInternal     = "internal"
	TypeBadRequest   = "bad_request"
	TypeUnknownRoute = "unknown_route"
	TypeRequestAbort = "canceled"
)

type AppError struct {
	Code    int    // HTTP status code
	Type    string // Machine readable category
	Message string // User-facing message
	err     error  // Internal-facing error for logging purposes
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.err
}

// NewBadRequestError creates a 400 Bad Request error.
func NewBadRequestError(message string, originalError ...error) *AppError {
	e := &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeBadRequest,
		Message: message,
	}
	if len(originalError) > 0 {
		e.err = originalError[0]
	}
	return e
}

// FromCommandError maps an error returned by the control service to an
// AppError.
func FromCommandError(err error) *AppError {
	e := &AppError{err: err, Message: err.Error()}
	switch {
	case command.IsValidationError(err):
		e.Code, e.Type = http.StatusBadRequest, TypeValidation
	case errors.Is(err, services.ErrUnknownCommand):
		e.Code, e.Type = http.StatusNotFound, TypeNotFound
	case errors.Is(err, control.ErrBusy), errors.Is(err, redis.ErrLeaseHeld):
		e.Code, e.Type = http.StatusConflict, TypeBusy
	case control.IsConnectionError(err):
		e.Code, e.Type = http.StatusBadGateway, TypeConnectivity
	case command.IsProtocolError(err):
		e.Code, e.Type = http.StatusBadGateway, TypeProtocol
	case errors.Is(err, control.ErrNoResponse), errors.Is(err, context.DeadlineExceeded):
		e.Code, e.Type = http.StatusGatewayTimeout, TypeTimeout
	case errors.Is(err, context.Canceled):
		e.Code, e.Type = http.StatusServiceUnavailable, TypeRequestAbort
	default:
		e.Code, e.Type = http.StatusInternalServerError, TypeInternal
		e.Message = "An unexpected internal error occurred."
	}
	return e
}
