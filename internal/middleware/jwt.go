package middleware // middleware holds the echo middleware shared by the reservation routes

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxSubject = "subject"
	ctxRole    = "role"
)

// JWTAuth validates an HS256 Bearer token signed with secret and stores its
// "sub" and "role" claims in the echo context.  Only the grid maintenance
// routes are wrapped with it; reservations are protected by passkeys.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			c.Set(ctxSubject, claims["sub"])
			c.Set(ctxRole, claims["role"])
			return next(c)
		}
	}
}

// subject returns the authenticated subject, or "" for anonymous requests.
func subject(c echo.Context) string {
	s, _ := c.Get(ctxSubject).(string)
	return s
}
