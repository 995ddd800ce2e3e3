package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"unschooling-payment-service/models"
)

const (
	UserContextKey      = "userID"
	UserEmailContextKey = "userEmail"
)

// AuthMiddleware trusts the identity headers set by the upstream proxy.
// Requests without X-User-ID are rejected.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(UserContextKey, userID)
		c.Set(UserEmailContextKey, c.GetHeader("X-User-Email"))
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(UserContextKey)
}

// GetUser returns the caller identity and whether one was set.
func GetUser(c *gin.Context) (models.User, bool) {
	id := c.GetString(UserContextKey)
	if id == "" {
		return models.User{}, false
	}
	return models.User{ID: id, Email: c.GetString(UserEmailContextKey)}, true
}
