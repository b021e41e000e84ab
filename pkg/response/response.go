package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the structured error envelope every endpoint uses:
// a machine-readable code, a human-readable message and optional
// context-specific details.
type ErrorBody struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

// Error sends a structured error response and aborts the handler chain.
func Error(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	c.AbortWithStatusJSON(status, ErrorBody{
		Error:   code,
		Message: message,
		Details: details,
	})
}

// InvalidRequest sends 400 for malformed bodies or parameters.
func InvalidRequest(c *gin.Context, message string, details map[string]interface{}) {
	Error(c, http.StatusBadRequest, "invalid_request", message, details)
}

// Unauthorized sends 401 for a missing or invalid credential.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// NotFound sends 404 for unknown segments, routes or stops.
func NotFound(c *gin.Context, message string, details map[string]interface{}) {
	Error(c, http.StatusNotFound, "not_found", message, details)
}

// Conflict sends 409 for an idempotency key reused with a different body.
func Conflict(c *gin.Context, message string, details map[string]interface{}) {
	Error(c, http.StatusConflict, "conflict", message, details)
}

// Unprocessable sends 422 when a value fails a semantic rule.
func Unprocessable(c *gin.Context, message string, details map[string]interface{}) {
	Error(c, http.StatusUnprocessableEntity, "unprocessable", message, details)
}

// RateLimited sends 429 when the quota is exhausted.
func RateLimited(c *gin.Context, message string, details map[string]interface{}) {
	Error(c, http.StatusTooManyRequests, "rate_limited", message, details)
}

// ServerError sends 500 for unexpected failures.
func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "server_error", message, nil)
}
