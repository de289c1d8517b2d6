package middleware

import (
	"net/http"
	"strings"

	"tiketi/config"
	"tiketi/internal/auth"
	"tiketi/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxToken    = "access_token"
	ctxInstance = "checkout_instance"
)

// AuthRequired validates the bearer token and stores the caller's identity
// and raw token (forwarded to the ticketing API) in the context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxToken, parts[1])
		c.Next()
	}
}

// RequireRole checks that the authenticated user has one of the allowed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.GetString(ctxRole)
		if r == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		for _, a := range allowed {
			if r == a {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// CheckoutInstance resolves which checkout UI instance the request belongs
// to, from the X-Checkout-Instance header or the "instance" query parameter.
func CheckoutInstance() gin.HandlerFunc {
	return func(c *gin.Context) {
		inst := c.GetHeader(domain.InstanceHeader)
		if inst == "" {
			inst = c.Query("instance")
		}
		if inst == "" {
			inst = domain.DefaultInstance
		}
		if len(inst) > 64 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "checkout instance id too long"})
			return
		}
		c.Set(ctxInstance, inst)
		c.Next()
	}
}

// GetUserID returns the authenticated user ID from context (must be used after AuthRequired).
func GetUserID(c *gin.Context) uint {
	v, _ := c.Get(ctxUserID)
	if v == nil {
		return 0
	}
	return v.(uint)
}

// GetAccessToken returns the caller's raw bearer token.
func GetAccessToken(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// GetInstance returns the checkout UI instance (must be used after CheckoutInstance).
func GetInstance(c *gin.Context) string {
	if v := c.GetString(ctxInstance); v != "" {
		return v
	}
	return domain.DefaultInstance
}
