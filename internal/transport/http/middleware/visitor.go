package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jeankeim/voice-brainstorm/internal/app"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/response"
)

const ContextVisitorIDKey = "visitor_id"

// AuthVisitor resolves the Bearer visitor token and stores the visitor id in
// the request context.
func AuthVisitor(visitors *app.VisitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		user, err := visitors.Resolve(token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextVisitorIDKey, user.ID)
		c.Next()
	}
}
