package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"atelier/pkg/response"
)

var policy = bluemonday.StrictPolicy()

// secretFields are passed through untouched.
var secretFields = map[string]bool{
	"password":     true,
	"old_password": true,
	"new_password": true,
	"code":         true,
}

// StripTags removes all markup from s.
func StripTags(s string) string {
	return policy.Sanitize(s)
}

// SanitizeInput strips markup from every string in JSON request bodies. Multipart and
// other bodies are left to the handlers.
func SanitizeInput() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}
		if !strings.HasPrefix(c.ContentType(), "application/json") || c.Request.Body == nil {
			c.Next()
			return
		}

		buf, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Abort(c, http.StatusBadRequest, "invalid body")
			return
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			c.Request.Body = io.NopCloser(bytes.NewReader(buf))
			c.Next()
			return
		}

		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.UseNumber()
		var body any
		if err := dec.Decode(&body); err != nil {
			response.Abort(c, http.StatusBadRequest, "malformed JSON")
			return
		}

		newBody, err := json.Marshal(sanitize("", body))
		if err != nil {
			response.Abort(c, http.StatusBadRequest, "malformed JSON")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(newBody))
		c.Request.ContentLength = int64(len(newBody))

		c.Next()
	}
}

func sanitize(key string, v any) any {
	switch val := v.(type) {
	case string:
		if secretFields[key] {
			return val
		}
		return policy.Sanitize(val)
	case map[string]any:
		for k, child := range val {
			val[k] = sanitize(k, child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = sanitize(key, child)
		}
		return val
	default:
		return v
	}
}
