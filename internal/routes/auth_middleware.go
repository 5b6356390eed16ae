// Authentication middleware. Checks for a valid bearer token in the request
// header; if valid, sets the actor in the context, otherwise returns 401.
package routes

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"school-device-issuance/internal/access"
	"school-device-issuance/internal/jwt"
)

const actorContextKey = "actor"

// GetActor returns the authenticated actor claim set by AuthMiddleware.
func GetActor(c *gin.Context) (*jwt.ActorClaim, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return nil, false
	}
	claim, ok := value.(*jwt.ActorClaim)
	return claim, ok
}

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := jwt.DecodeActorJWT(token)
		if err != nil {
			slog.Warn("Invalid or expired actor token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(actorContextKey, claims)
		c.Next()
	}
}

// RequirePermission creates middleware that checks for a specific permission.
func RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		rbac := c.MustGet("RBAC").(*access.RBAC)
		if !rbac.Can(actor.Email, resource, action) {
			slog.Warn("Permission denied",
				"user", actor.Email,
				"resource", resource,
				"action", action)

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "permission denied",
				"details": map[string]string{
					"resource": resource,
					"action":   action,
				},
			})
			return
		}

		c.Next()
	}
}
