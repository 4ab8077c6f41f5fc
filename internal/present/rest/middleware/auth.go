package middleware

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/ngonendi/edgestore/internal/present/rest/presenter"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	adminToken string
}

func NewAuthMiddleware(adminToken string) *AuthMiddleware {
	return &AuthMiddleware{
		adminToken: adminToken,
	}
}

// RequireAdmin gates mutating endpoints behind the configured bearer token.
// An empty configured token disables the gate (local development).
func (m *AuthMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.RequireAdmin")
		defer span.End()

		if m.adminToken == "" {
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}

		authHeader := c.Request().Header.Get("authorization")
		split := strings.Split(authHeader, " ")
		if len(split) != 2 || split[0] != "Bearer" {
			span.RecordError(fmt.Errorf("invalid authentication header"))
			return presenter.Unauthorized(c, "bearer token required")
		}

		if subtle.ConstantTimeCompare([]byte(split[1]), []byte(m.adminToken)) != 1 {
			span.RecordError(fmt.Errorf("admin token mismatch"))
			return presenter.Unauthorized(c, "invalid token")
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
