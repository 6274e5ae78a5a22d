package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/auth"
	"github.com/hisyeo/kennings/internal/middleware"
)

type AuthHandler struct {
	jwtSecret string
	keys      auth.Keys
}

func NewAuthHandler(jwtSecret string, keys auth.Keys) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret, keys: keys}
}

type TokenRequest struct {
	Key  string `json:"key" binding:"required"`
	Name string `json:"name"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	Role      auth.Role `json:"role"`
	ExpiresIn int       `json:"expiresIn"`
}

// Token exchanges a privileged key for a bearer token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": middleware.InvalidCredentialsMessage})
		return
	}

	role, err := h.keys.RoleForKey(req.Key)
	if err != nil {
		log.Printf("[Auth] key exchange failed from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": middleware.InvalidCredentialsMessage})
		return
	}

	token, err := auth.GenerateToken(role, strings.TrimSpace(req.Name), h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		Role:      role,
		ExpiresIn: int(auth.TokenExpiry.Seconds()),
	})
}
