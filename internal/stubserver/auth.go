package stubserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/session"
)

const userKey = "stubserver.user"

// authRequired rejects requests without a valid bearer token.
func authRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := bearerUser(c, secret)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// authOptional admits tokenless requests as the demo user so an unauthenticated
// client can still open a chat. A token that is present but invalid is still
// rejected.
func authOptional(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Set(userKey, session.Demo().User)
			c.Next()
			return
		}
		u, ok := bearerUser(c, secret)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func bearerUser(c *gin.Context, secret string) (session.User, bool) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return session.User{}, false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	u, err := session.Verify(secret, token)
	if err != nil {
		return session.User{}, false
	}
	return u, true
}

func currentUser(c *gin.Context) session.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(session.User); ok {
			return u
		}
	}
	return session.Demo().User
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}
