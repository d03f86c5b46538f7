package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Headers set by the auth gateway in front of the API
const (
	HeaderProfileID      = "X-Profile-ID"
	HeaderProfileName    = "X-Profile-Name"
	HeaderProfileContact = "X-Profile-Contact"
)

// Context keys
const (
	ProfileIDKey      = "profile_id"
	ProfileNameKey    = "profile_name"
	ProfileContactKey = "profile_contact"
)

// Identity copies the gateway headers into the gin context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ProfileIDKey, strings.TrimSpace(c.GetHeader(HeaderProfileID)))
		c.Set(ProfileNameKey, strings.TrimSpace(c.GetHeader(HeaderProfileName)))
		c.Set(ProfileContactKey, strings.TrimSpace(c.GetHeader(HeaderProfileContact)))
		c.Next()
	}
}

// RequireProfile rejects calls that reach the API without a signed-in profile.
func RequireProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ProfileIDKey) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderProfileID + " header"})
			return
		}
		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+HeaderProfileID+", "+HeaderProfileName+", "+HeaderProfileContact)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
