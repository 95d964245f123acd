package httperr

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"mds-backend/internal/schema"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func InvalidPayload(msg string) *AppError {
	return New("INVALID_PAYLOAD", fiber.StatusBadRequest, msg)
}

func Unauthorized(msg string) *AppError {
	return New("UNAUTHORIZED", fiber.StatusUnauthorized, msg)
}

func Forbidden(msg string) *AppError {
	return New("FORBIDDEN", fiber.StatusForbidden, msg)
}

func Internal(msg string) *AppError {
	return New("INTERNAL_ERROR", fiber.StatusInternalServerError, msg)
}

func NotFound(what, id string) *AppError {
	return New("NOT_FOUND", fiber.StatusNotFound, fmt.Sprintf("%s %s not found", what, id))
}

// schemaErrors maps core sentinels to their HTTP rendering, checked in order.
var schemaErrors = []struct {
	err    error
	code   string
	status int
}{
	{schema.ErrEntityNotFound, "ENTITY_NOT_FOUND", fiber.StatusNotFound},
	{schema.ErrFieldNotFound, "FIELD_NOT_FOUND", fiber.StatusNotFound},
	{schema.ErrLookupNotFound, "LOOKUP_NOT_FOUND", fiber.StatusNotFound},
	{schema.ErrEntityAlreadyExists, "ENTITY_ALREADY_EXISTS", fiber.StatusConflict},
	{schema.ErrEntityChanged, "ENTITY_CHANGED", fiber.StatusConflict},
	{schema.ErrEntityReadOnly, "ENTITY_READ_ONLY", fiber.StatusForbidden},
	{schema.ErrAccessDenied, "ACCESS_DENIED", fiber.StatusForbidden},
	{schema.ErrNoSuchType, "NO_SUCH_TYPE", fiber.StatusUnprocessableEntity},
	{schema.ErrInvalidSettingValue, "INVALID_SETTING_VALUE", fiber.StatusUnprocessableEntity},
	{schema.ErrInvalidPatch, "INVALID_PATCH", fiber.StatusUnprocessableEntity},
	{schema.ErrInvalidEntity, "INVALID_ENTITY", fiber.StatusUnprocessableEntity},
}

// FromSchema converts a core error into an AppError. It returns nil for
// errors that are not core sentinels.
func FromSchema(err error) *AppError {
	for _, m := range schemaErrors {
		if errors.Is(err, m.err) {
			return New(m.code, m.status, err.Error())
		}
	}
	return nil
}

// Handler is the Fiber ErrorHandler rendering every error as ErrorResponse.
func Handler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
	if appErr = FromSchema(err); appErr != nil {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: New("HTTP_ERROR", fiberErr.Code, fiberErr.Message),
		})
	}

	slog.ErrorContext(c.UserContext(), "request failed", "method", c.Method(), "path", c.Path(), "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: Internal("Internal server error"),
	})
}
