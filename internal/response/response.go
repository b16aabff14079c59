package response

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the error body shape every endpoint returns:
// {error, message, requestId}.
type ErrorResponse struct {
	Error     ErrCode `json:"error"`
	Message   string  `json:"message"`
	RequestID string  `json:"requestId"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends a successful JSON response with the given status code and
// body. The body shape is endpoint-specific; X-Request-Id is already set
// on the response by RequestIDMiddleware.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Fail sends the error envelope and does not abort; callers in handlers
// return immediately after calling this.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, ErrorResponse{
		Error:     code,
		Message:   GetMessage(code),
		RequestID: requestID(c),
	})
}

// FailWithMessage sends the error envelope with a caller-supplied message
// instead of the generic one (e.g. DEVICE_MISMATCH needs the locked owner
// folded into the message/body — handlers that need extra fields build
// their own body instead of calling Fail).
func FailWithMessage(c *gin.Context, statusCode int, code ErrCode, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID(c),
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error:     code,
		Message:   GetMessage(code),
		RequestID: requestID(c),
	})
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func requestID(c *gin.Context) string {
	reqID, _ := c.Get(ContextKeyRequestID)
	id, ok := reqID.(string)
	if !ok || id == "" {
		return ""
	}
	return id
}
