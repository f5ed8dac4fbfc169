package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"loggerctl/command"
	"loggerctl/services"

	"github.com/labstack/echo/v4"
)

// maxTimeoutSeconds bounds the per-request timeout a client may ask for.
const maxTimeoutSeconds = 300

// CommandService is the part of services.ControlService the API needs.
type CommandService interface {
	Execute(ctx context.Context, req services.CommandRequest) (*command.Response, error)
}

// APIHandler handles all API requests related to logger commands.
type APIHandler struct {
	service CommandService
	logger  *slog.Logger
}

// NewAPIHandler creates a new instance of APIHandler.
func NewAPIHandler(service CommandService, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		service: service,
		logger:  logger.With("component", "api_handler"),
	}
}

// CommandRequest is the body of a command call.
type CommandRequest struct {
	Model          string         `json:"model"`
	Args           []any          `json:"args"`
	Named          map[string]any `json:"named"`
	TimeoutSeconds int            `json:"timeoutSeconds"`
	ResponseSuffix string         `json:"responseSuffix"`
}

// HealthCheck provides a simple health status of the service.
func (h *APIHandler) HealthCheck(c echo.Context) error {
	data := map[string]interface{}{
		"service":   "loggerctl",
		"timestamp": time.Now().Unix(),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Service is healthy", data))
}

// ListCommands returns the command catalog.
func (h *APIHandler) ListCommands(c echo.Context) error {
	kinds := command.Kinds()
	data := map[string]interface{}{
		"commands": kinds,
		"count":    len(kinds),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Commands retrieved successfully", data))
}

// SendCommand runs one catalog command against a logger and blocks until it
// resolves.
func (h *APIHandler) SendCommand(c echo.Context) error {
	serial := c.Param("serial")
	kind := c.Param("kind")

	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("Invalid request body", err)
	}
	if req.TimeoutSeconds < 0 || req.TimeoutSeconds > maxTimeoutSeconds {
		return &AppError{
			Code:    http.StatusBadRequest,
			Type:    TypeValidation,
			Message: "timeoutSeconds must be between 0 and 300",
		}
	}

	resp, err := h.service.Execute(c.Request().Context(), services.CommandRequest{
		Kind:           kind,
		Serial:         serial,
		Model:          req.Model,
		Args:           command.Args{Positional: req.Args, Named: req.Named},
		Timeout:        time.Duration(req.TimeoutSeconds) * time.Second,
		ResponseSuffix: req.ResponseSuffix,
	})
	if err != nil {
		return FromCommandError(err)
	}

	message := "Command succeeded"
	if !resp.Success {
		message = "Logger reported a failure"
		h.logger.Info("Command failed on logger", "command", kind, "serial", serial, "device_error", resp.Error)
	}
	return c.JSON(http.StatusOK, SuccessResponse(message, resp))
}

// Register wires the API routes into e.
func (h *APIHandler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/health", h.HealthCheck)
	api.GET("/commands", h.ListCommands)
	api.POST("/loggers/:serial/commands/:kind", h.SendCommand)
}
