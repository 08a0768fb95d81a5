package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/harveywai/certwatch/pkg/auth"
)

const (
	contextUserIDKey = "userID"
	contextUserRole  = "userRole"
	contextUsername  = "username"
)

// TokenValidator turns a bearer token into claims.
type TokenValidator func(token string) (*auth.Claims, error)

// AuthMiddleware validates the JWT token in the Authorization header and
// attaches user information to the Gin context for downstream handlers.
// Failures answer 401 with a detail message.
func AuthMiddleware(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Not authenticated",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Authorization header must be in the format 'Bearer <token>'",
			})
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Authorization token is empty",
			})
			return
		}

		claims, err := validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Invalid or expired token",
			})
			return
		}

		c.Set(contextUserIDKey, claims.UserID)
		c.Set(contextUserRole, claims.Role)
		c.Set(contextUsername, claims.Username)

		c.Next()
	}
}

// RoleMiddleware ensures that the authenticated user has the required role.
// It should be used in combination with AuthMiddleware.
func RoleMiddleware(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get(contextUserRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "Missing user role",
			})
			return
		}

		role, ok := roleVal.(string)
		if !ok || !strings.EqualFold(role, requiredRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "Insufficient permissions",
			})
			return
		}

		c.Next()
	}
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) uint {
	return c.GetUint(contextUserIDKey)
}

// Username returns the authenticated username set by AuthMiddleware.
func Username(c *gin.Context) string {
	return c.GetString(contextUsername)
}

// RequireSession redirects browsers to loginPath when no local session exists.
func RequireSession(isAuthenticated func() bool, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAuthenticated() {
			c.Redirect(http.StatusSeeOther, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}
