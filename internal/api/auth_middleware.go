package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AuthConfig contains API key authentication settings. Keys are stored as
// SHA-256 hex digests keyed by the caller name they identify.
type AuthConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	HeaderName string            `mapstructure:"header_name"`
	KeyHashes  map[string]string `mapstructure:"key_hashes"`
}

// DefaultAuthConfig returns the default auth configuration
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:    false,
		HeaderName: "X-API-Key",
	}
}

// HashAPIKey creates a SHA-256 hash of an API key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// lookup returns the caller name owning key
func (a AuthConfig) lookup(key string) (string, bool) {
	digest := []byte(HashAPIKey(key))
	for name, hash := range a.KeyHashes {
		if subtle.ConstantTimeCompare(digest, []byte(strings.ToLower(hash))) == 1 {
			return name, true
		}
	}
	return "", false
}

// APIKeyMiddleware requires a valid API key in the configured header or as an
// Authorization bearer token. When auth is disabled every request passes and
// is attributed to "anonymous".
func APIKeyMiddleware(config AuthConfig) gin.HandlerFunc {
	header := config.HeaderName
	if header == "" {
		header = DefaultAuthConfig().HeaderName
	}

	return func(c *gin.Context) {
		if !config.Enabled {
			c.Set("user_id", "anonymous")
			c.Next()
			return
		}

		apiKey := c.GetHeader(header)
		if apiKey == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			log.Debug().
				Str("ip", c.ClientIP()).
				Str("path", c.Request.URL.Path).
				Msg("Auth: No API key provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key via " + header + " header or Authorization: Bearer <key>",
			})
			return
		}

		name, ok := config.lookup(apiKey)
		if !ok {
			log.Warn().
				Str("ip", c.ClientIP()).
				Str("path", c.Request.URL.Path).
				Msg("Auth: Invalid API key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Set("user_id", name)
		c.Next()
	}
}
