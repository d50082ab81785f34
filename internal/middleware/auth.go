package middleware

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MattyMroz/geminicli2api/internal/apierr"
)

// Auth validates the shared proxy secret. Four presentations are accepted,
// first match wins: Bearer token, Basic auth password, ?key= query
// parameter, and the x-goog-api-key header. None of them is a stronger
// boundary than the others; they exist so any client SDK can connect.
func Auth(password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if password == "" {
			c.Next()
			return
		}

		if key := c.Query("key"); key == password {
			c.Next()
			return
		}
		if key := c.GetHeader("x-goog-api-key"); key == password {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		switch {
		case strings.HasPrefix(authHeader, "Bearer "):
			if strings.TrimPrefix(authHeader, "Bearer ") == password {
				c.Next()
				return
			}
		case strings.HasPrefix(authHeader, "Basic "):
			if decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic ")); err == nil {
				if _, pass, ok := strings.Cut(string(decoded), ":"); ok && pass == password {
					c.Next()
					return
				}
			}
		}

		c.Header("WWW-Authenticate", "Basic")
		c.Data(http.StatusUnauthorized, "application/json",
			apierr.MarshalOpenAI(http.StatusUnauthorized,
				"Invalid credentials. Use Bearer token, Basic Auth, 'key' query param, or 'x-goog-api-key' header."))
		c.Abort()
	}
}
