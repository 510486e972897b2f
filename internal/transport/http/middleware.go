package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
)

const (
	// ContextKeyIdentity is the context key for storing the resolved API identity.
	ContextKeyIdentity = "identity"

	headerTokenID  = "X-TOKEN-ID"
	headerTokenKey = "X-TOKEN-KEY"
)

// credentials reads the token pair from headers, falling back to the id/key query parameters.
func credentials(c *gin.Context) (id, key string) {
	id = c.GetHeader(headerTokenID)
	if id == "" {
		id = c.Query("id")
	}
	key = c.GetHeader(headerTokenKey)
	if key == "" {
		key = c.Query("key")
	}
	return id, key
}

// resolveIdentity authenticates the request, replying 403 on failure.
func resolveIdentity(c *gin.Context, authService *auth.Service, logger *zerolog.Logger) (*auth.Identity, bool) {
	id, key := credentials(c)
	ident, ok := authService.Resolve(c.Request.Context(), id, key)
	if !ok {
		logger.Debug().Str("token_id", id).Msg("invalid token")
		c.String(http.StatusForbidden, invalidTokenBody)
		c.Abort()
		return nil, false
	}
	return ident, true
}

// TokenAuthMiddleware creates a middleware that validates API token credentials.
func TokenAuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := resolveIdentity(c, authService, logger)
		if !ok {
			return
		}

		c.Set(ContextKeyIdentity, ident)
		c.Next()
	}
}

// identityFrom returns the identity stored by TokenAuthMiddleware.
func identityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return nil, false
	}
	ident, ok := v.(*auth.Identity)
	return ident, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
