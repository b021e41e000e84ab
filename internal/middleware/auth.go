package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/crowdeta/transit-eta-go/pkg/response"
)

// Auth validates the bearer credential. Two credential forms are
// accepted: the static API key, or an HS256-signed JWT under the
// configured secret (for clients issued short-lived tokens).
func Auth(apiKey, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "Missing or invalid Authorization header")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		if apiKey != "" && token == apiKey {
			c.Next()
			return
		}

		if jwtSecret != "" && verifyJWT(token, jwtSecret) {
			c.Next()
			return
		}

		response.Unauthorized(c, "Invalid API key")
	}
}

func verifyJWT(token, secret string) bool {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	return err == nil && parsed.Valid
}
