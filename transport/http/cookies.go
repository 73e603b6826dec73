package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/doctorauth/core"
)

const (
	AccessCookieName   = "doctor-auth"
	RefreshCookieName  = "doctor-refresh"
	RefreshTokenHeader = "x-refresh-token"
)

// CookieConfig controls the attributes of the session cookies
type CookieConfig struct {
	Secure bool
	Domain string
}

func (cc CookieConfig) setSession(c *gin.Context, tokens core.TokenPair, accessTTL, refreshTTL time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookieName, tokens.AccessToken, int(accessTTL.Seconds()), "/", cc.Domain, cc.Secure, true)
	c.SetCookie(RefreshCookieName, tokens.RefreshToken, int(refreshTTL.Seconds()), "/", cc.Domain, cc.Secure, true)
}

func (cc CookieConfig) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookieName, "", -1, "/", cc.Domain, cc.Secure, true)
	c.SetCookie(RefreshCookieName, "", -1, "/", cc.Domain, cc.Secure, true)
}

// refreshTokenFrom reads the refresh token from its cookie, falling back to the header
func refreshTokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(RefreshCookieName); err == nil && token != "" {
		return token
	}
	return c.GetHeader(RefreshTokenHeader)
}
