package middleware

// sessionkey.go ensures every visitor request carries a stable session
// key. The key identifies the device's selection session in the KV
// store; it is an anonymous random id, not an authentication token.

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// sessionCookieName is the cookie carrying the visitor's session key.
const sessionCookieName = "card_session"

// contextSessionKey is the echo context key handlers read via SessionKey.
const contextSessionKey = "session_key"

// SessionKey returns the visitor's session key from context, or "" when
// the EnsureSessionKey middleware did not run.
func SessionKey(c echo.Context) string {
	if v, ok := c.Get(contextSessionKey).(string); ok {
		return v
	}
	return ""
}

// EnsureSessionKey reads the session cookie, minting and setting a new
// one when absent, and stores the key in the request context. An
// X-Session-Key header overrides the cookie so non-browser clients can
// keep their session across calls.
func EnsureSessionKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-Session-Key")
			if key == "" {
				if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
					key = cookie.Value
				}
			}
			if key == "" {
				key = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     sessionCookieName,
					Value:    key,
					Path:     "/",
					Expires:  time.Now().Add(30 * 24 * time.Hour),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(contextSessionKey, key)
			return next(c)
		}
	}
}
