package middlewares

import (
	"net/http"

	"campusgrid/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	userContextKey     = "userID"
	usernameContextKey = "username"
)

// AuthMiddleware validates the access token cookie and sets the student
// id in the context.
func AuthMiddleware(tokenService *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie("access_token")
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		claims, err := tokenService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(userContextKey, claims.UserID)
		c.Set(usernameContextKey, claims.Username)
		c.Next()
	}
}

// UserID reads the authenticated student id set by AuthMiddleware.
func UserID(c *gin.Context) (int, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}
