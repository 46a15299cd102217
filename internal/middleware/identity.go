package middleware

// identity.go turns the JWT subject into the numeric user id used by the
// chat, and renders it as a key fragment for the rate limiter.

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the id stored by JWTAuth.  ok is false on routes that are
// not behind JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey).(uint64)
	return v, ok && v != 0
}

// subjectID accepts "sub" as a positive integer, either a JSON number or a
// decimal string.
func subjectID(sub interface{}) (uint64, bool) {
	switch v := sub.(type) {
	case float64:
		if v < 1 || v > 1<<53 || v != math.Trunc(v) {
			return 0, false
		}
		return uint64(v), true
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// userKey is the caller's id as a string, or "anon".
func userKey(c echo.Context) string {
	if uid, ok := UserID(c); ok {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
