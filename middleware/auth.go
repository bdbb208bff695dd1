package middleware

import (
	"errors"
	"net/http"

	"instagram-automation/internal/auth"
	"instagram-automation/utils"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	tokens  *auth.Tokens
	enabled bool
}

// NewAuthMiddleware guards the API with operator tokens. With tokens nil
// every request passes, which is how local and simulation setups run.
func NewAuthMiddleware(tokens *auth.Tokens) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, enabled: tokens != nil}
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled {
			c.Next()
			return
		}

		tokenString := auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := a.tokens.Validate(c.Request.Context(), tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrRevokedToken) {
				utils.RespondWithUnauthorized(c, err.Error())
			} else {
				utils.RespondWithError(c, http.StatusServiceUnavailable, "auth_unavailable", "Could not verify token", nil)
			}
			c.Abort()
			return
		}

		c.Set("operator", claims.Operator)
		c.Set("claims", claims)
		c.Next()
	}
}

// GetOperator returns the authenticated operator, or "".
func GetOperator(c *gin.Context) string {
	if v, exists := c.Get("operator"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
