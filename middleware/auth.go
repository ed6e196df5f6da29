package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/config"
	"github.com/gin-gonic/gin"
)

const (
	UserIDKey = "user_id"
	tokenKey  = "token"
	claimsKey = "claims"
)

// RevokedKey is the cache key marking a token as revoked.
func RevokedKey(token string) string { return "revoked:" + token }

// Auth validates the Bearer JWT and rejects tokens listed as revoked in the
// cache. Issuing tokens is left to the external sign-in flow.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := bearer(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if c != nil {
			cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			defer cancel()
			revoked, err := c.Exists(cacheCtx, RevokedKey(tokenStr))
			if err != nil {
				ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token check unavailable"})
				return
			}
			if revoked {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		ctx.Set(UserIDKey, claims.Subject)
		ctx.Set(tokenKey, tokenStr)
		ctx.Set(claimsKey, claims)
		ctx.Next()
	}
}

// bearer reads the token from the Authorization header, or from the
// access_token query parameter for EventSource clients that cannot set
// headers.
func bearer(ctx *gin.Context) string {
	if h := ctx.GetHeader("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return ""
		}
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ctx.Query("access_token")
}

// GetUserID retrieves the authenticated user id from the Gin context.
func GetUserID(c *gin.Context) string {
	if v, exists := c.Get(UserIDKey); exists {
		return v.(string)
	}
	return ""
}

// GetToken returns the raw token and its claims accepted by Auth.
func GetToken(c *gin.Context) (string, *Claims) {
	tok := c.GetString(tokenKey)
	if v, ok := c.Get(claimsKey); ok {
		return tok, v.(*Claims)
	}
	return tok, nil
}
