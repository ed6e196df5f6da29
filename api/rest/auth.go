package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/config"
	mw "github.com/Fixen7/lifequest-app/middleware"
	"github.com/gin-gonic/gin"
)

// AuthHandler manages tokens issued by the external sign-in flow.
type AuthHandler struct {
	cache cache.Cache
	sec   config.SecurityConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{cache: c, sec: sec}
}

// Logout handles POST /api/auth/logout. The token stays revoked until it
// would have expired anyway.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, claims := mw.GetToken(c)
	if token == "" || claims == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	if err := h.revoke(c.Request.Context(), token, claims); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "revocation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	userID := mw.GetUserID(c)
	token, claims := mw.GetToken(c)
	if userID == "" || claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	newToken, err := mw.GenerateToken(userID, h.sec.JWTSecret, h.sec.JWTTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	if err := h.revoke(c.Request.Context(), token, claims); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "revocation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": newToken})
}

func (h *AuthHandler) revoke(ctx context.Context, token string, claims *mw.Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := time.Until(claims.ExpiresAt.Time); left > ttl {
			ttl = left
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.cache.Set(ctx, mw.RevokedKey(token), "1", ttl)
}
