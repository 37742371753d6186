package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"coursebook/internal/dto"
	"coursebook/internal/model"
)

func LoggingMiddleware() ginext.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		c.Next()

		zlog.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

// Auth validates the Bearer token and stores the caller's id and roles in the
// request context.
func Auth(secret []byte) ginext.HandlerFunc {
	return func(c *ginext.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			dto.UnauthorizedError(c, "Missing bearer token")
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			dto.UnauthorizedError(c, "Invalid or expired token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			dto.UnauthorizedError(c, "Invalid token claims")
			c.Abort()
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			dto.UnauthorizedError(c, "Invalid token claims")
			c.Abort()
			return
		}

		var roles []string
		if rawRoles, ok := claims["roles"].([]interface{}); ok {
			for _, r := range rawRoles {
				if s, ok := r.(string); ok {
					roles = append(roles, s)
				}
			}
		}

		c.Set("userId", sub)
		c.Set("roles", roles)
		c.Next()
	}
}

// AdminOnly runs after Auth and rejects callers without the admin role.
func AdminOnly() ginext.HandlerFunc {
	return func(c *ginext.Context) {
		roles, _ := c.Get("roles")
		if list, ok := roles.([]string); ok {
			for _, r := range list {
				if r == model.RoleAdmin {
					c.Next()
					return
				}
			}
		}
		dto.ForbiddenError(c, "Admin role required")
		c.Abort()
	}
}
