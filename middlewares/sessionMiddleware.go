package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/partners_backend/utils"
)

// SessionMiddleware resolves the bearer token into the actor identity the
// workflow reads from context. Requests without a token pass through
// anonymously; capability checks reject them downstream.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claims, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, token)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetUserNameInContext(ctx, claims.Name)
		ctx = utils.SetCapabilitiesInContext(ctx, claims.Capabilities)
		ctx = utils.SetIsAdminInContext(ctx, claims.IsAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
