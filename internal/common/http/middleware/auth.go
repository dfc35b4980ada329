package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/response"
)

// ServiceAuthMiddleware verifies the Bearer token minted by peer services.
// Tokens are HS256 with the shared secret; the subject names the caller.
func ServiceAuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			response.AbortWithErrorCode(c, appErr.Unauthorized, "missing service token")
			return
		}
		claims := &jwt.RegisteredClaims{}
		parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.AbortWithErrorCode(c, appErr.TokenExpired, "")
				return
			}
			response.AbortWithErrorCode(c, appErr.TokenInvalid, "")
			return
		}
		if !parsed.Valid || claims.Subject == "" {
			response.AbortWithErrorCode(c, appErr.TokenInvalid, "")
			return
		}
		c.Set("service_name", claims.Subject)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
