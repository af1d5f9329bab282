// Package response writes the JSON envelope every endpoint answers with.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func SendAPIResponse(c *gin.Context, code int, success bool, message string, data any) {
	c.JSON(code, APIResponse{
		Success:   success,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	})
}

// Abort sends a failure envelope and stops the handler chain.
func Abort(c *gin.Context, code int, message string) {
	SendAPIResponse(c, code, false, message, nil)
	c.Abort()
}

// Fail reports err with the given status. Server errors are attached to the gin context for the
// request logger and answered with fallback, so internal details stay out of the body. data
// travels with client errors only.
func Fail(c *gin.Context, code int, err error, fallback string, data any) {
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
		SendAPIResponse(c, code, false, fallback, nil)
		return
	}
	SendAPIResponse(c, code, false, err.Error(), data)
}
