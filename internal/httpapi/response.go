package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reconquest/internal"
)

const (
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code      string                `json:"code"`
	Message   string                `json:"message"`
	RequestID string                `json:"requestId,omitempty"`
	Fields    []internal.FieldError `json:"fields,omitempty"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{Error: &ErrorInfo{Code: code, Message: message, RequestID: c.GetString(requestIDKey)}})
}

// handleError maps domain errors onto HTTP statuses. Unknown errors are
// logged by the middleware and hidden from the client.
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verr *internal.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, Response{Error: &ErrorInfo{
			Code:      ErrCodeValidation,
			Message:   "invoice validation failed",
			RequestID: c.GetString(requestIDKey),
			Fields:    verr.Fields,
		}})
		return
	}
	var dup *internal.DuplicateIDError
	if errors.As(err, &dup) {
		fail(c, http.StatusConflict, ErrCodeConflict, dup.Error())
		return
	}
	if errors.Is(err, internal.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "an unexpected error occurred")
}
