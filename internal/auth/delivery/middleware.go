package delivery

import (
	"net/http"
	"strings"

	"mailtrack-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

// AuthMiddleware resolves the caller identity. When trustHeader is set, an
// x-user-id header forwarded by the gateway is accepted as is; otherwise a
// Bearer token signed with the shared secret is required.
func AuthMiddleware(authUsecase usecase.AuthUsecase, trustHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if trustHeader {
			if userID := strings.TrimSpace(c.GetHeader("x-user-id")); userID != "" {
				c.Set(UserIDKey, userID)
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
			c.Abort()
			return
		}

		userID, err := authUsecase.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the id set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
