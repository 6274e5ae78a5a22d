package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/auth"
)

// KeyHeader carries a raw privileged key as an alternative to a bearer token.
const KeyHeader = "X-Kenning-Key"

const (
	InvalidCredentialsMessage = "You provided invalid credentials!"
	forbiddenMessage          = "You don't have permission to do that!"
)

// RequireRole accepts either a bearer token issued by /api/auth/token or a
// raw key in KeyHeader, and requires the caller's role to satisfy role.
func RequireRole(jwtSecret string, keys auth.Keys, role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		have, name, ok := callerRole(c, jwtSecret, keys)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": InvalidCredentialsMessage})
			return
		}
		if !have.Satisfies(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": forbiddenMessage})
			return
		}

		c.Set("role", have)
		c.Set("userName", name)
		c.Next()
	}
}

func callerRole(c *gin.Context, jwtSecret string, keys auth.Keys) (auth.Role, string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", "", false
		}
		claims, err := auth.ValidateToken(parts[1], jwtSecret)
		if err != nil {
			return "", "", false
		}
		return claims.Role, claims.Name, true
	}

	if key := c.GetHeader(KeyHeader); key != "" {
		role, err := keys.RoleForKey(key)
		if err != nil {
			return "", "", false
		}
		return role, "", true
	}

	return "", "", false
}
