package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RefreshCookieName is the cookie carrying the refresh token. The refresh
// token travels only in this cookie, never in a response body.
const RefreshCookieName = "refresh_token"

// SetRefreshCookie attaches the refresh token to the response as an
// HTTP-only, secure, strict-same-site cookie lasting the refresh TTL.
func SetRefreshCookie(c *fiber.Ctx, token string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
	})
}

// ClearRefreshCookie expires the refresh cookie on the client. The token
// itself stays cryptographically valid until its expiry claim passes.
func ClearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
