package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"atelier/pkg/response"
)

type sessionKey struct{}

const ginSessionKey = "session"

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by RequireSession, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// CurrentSession reads the session from the gin context or the request context.
func CurrentSession(c *gin.Context) (*Session, bool) {
	if v, ok := c.Get(ginSessionKey); ok {
		if s, ok := v.(*Session); ok && s != nil {
			return s, true
		}
	}
	return FromContext(c.Request.Context())
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// RequireSession rejects requests without a live bearer session.
func RequireSession(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "authorization header missing or malformed")
			return
		}

		session, err := svc.Session(c.Request.Context(), token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		c.Set(ginSessionKey, &session)
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), &session))
		c.Next()
	}
}

// RequireRole must run after RequireSession.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "no active session")
			return
		}
		if session.Role != role {
			response.Abort(c, http.StatusForbidden, "access denied")
			return
		}
		c.Next()
	}
}
