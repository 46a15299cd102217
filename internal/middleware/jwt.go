package middleware // middleware holds the echo middleware shared by the HTTP routes

import (
	"net/http" // HTTP status codes for responses
	"strings"  // prefix checking and trimming of the Authorization header

	"github.com/golang-jwt/jwt/v5" // JWT parsing and validation
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// UserIDKey is the echo context key holding the authenticated user id
// (uint64) once JWTAuth has run.
const UserIDKey = "user_id"

// JWTAuth returns an Echo middleware that validates a Bearer access token
// signed with HS256 and stores its subject as the caller's user id.  Tokens
// are issued by the account service; this service only verifies them.  The
// subject may be encoded as a JSON number or a decimal string.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
			if err != nil || !tok.Valid {
				return unauthorized(c, "invalid token")
			}

			uid, ok := subjectID(claims["sub"])
			if !ok {
				return unauthorized(c, "invalid subject")
			}
			c.Set(UserIDKey, uid)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not_authenticated", "message": msg})
}
