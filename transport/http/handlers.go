package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"github.com/layer-3/doctorauth/service"
	"github.com/rs/zerolog"
)

const (
	msgInvalidRefresh = "invalid refresh token"
	msgInternal       = "internal server error"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	identity    string
	cookies     CookieConfig
	health      ports.Pinger
	logger      zerolog.Logger
}

// NewAuthHandlers creates new auth handlers. identity is the practitioner the PIN unlocks.
func NewAuthHandlers(authService *service.AuthService, identity string, cookies CookieConfig, health ports.Pinger, logger zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		identity:    identity,
		cookies:     cookies,
		health:      health,
		logger:      logger,
	}
}

// PinResponse is the body of the PIN verification endpoint
type PinResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	LockedOut         bool   `json:"lockedOut,omitempty"`
	RemainingTime     *int   `json:"remainingTime,omitempty"`
	RateLimited       bool   `json:"rateLimited,omitempty"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
}

// StatusResponse is the body of the refresh and logout endpoints
type StatusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// VerifyPin handles the PIN verification request
func (h *AuthHandlers) VerifyPin(c *gin.Context) {
	var req struct {
		Pin string `json:"pin"`
	}

	// A body that does not bind is a malformed PIN and goes through the same
	// rate limit and attempt policy.
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug().Err(err).Msg("unreadable pin request")
		req.Pin = ""
	}

	outcome, err := h.authService.VerifyPin(c.Request.Context(), core.PinAttempt{
		Identity: h.identity,
		Pin:      req.Pin,
		Source:   c.ClientIP(),
	})
	if err != nil {
		h.internalError(c, err, PinResponse{Error: msgInternal})
		return
	}

	switch outcome.Kind {
	case core.OutcomeSuccess:
		h.cookies.setSession(c, *outcome.Tokens, h.authService.AccessTTL(), h.authService.RefreshTTL())
		c.JSON(http.StatusOK, PinResponse{Success: true})

	case core.OutcomeWrongPin:
		c.JSON(http.StatusUnauthorized, PinResponse{
			Error:             "incorrect PIN",
			RemainingAttempts: intPtr(outcome.RemainingAttempts),
		})

	case core.OutcomeMalformed:
		c.JSON(http.StatusBadRequest, PinResponse{
			Error:             core.ErrMalformedPin.Error(),
			RemainingAttempts: intPtr(outcome.RemainingAttempts),
		})

	case core.OutcomeLockedOut:
		c.Header("Retry-After", strconv.Itoa(outcome.RemainingSeconds))
		c.JSON(http.StatusLocked, PinResponse{
			Error:         "too many failed attempts, try again later",
			LockedOut:     true,
			RemainingTime: intPtr(outcome.RemainingSeconds),
		})

	case core.OutcomeRateLimited:
		c.Header("Retry-After", strconv.Itoa(outcome.RemainingSeconds))
		c.JSON(http.StatusTooManyRequests, PinResponse{
			Error:         "too many requests",
			RateLimited:   true,
			RemainingTime: intPtr(outcome.RemainingSeconds),
		})

	default:
		h.internalError(c, errors.New("unknown pin outcome "+outcome.Kind.String()), PinResponse{Error: msgInternal})
	}
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	refreshToken := refreshTokenFrom(c)
	if refreshToken == "" {
		c.JSON(http.StatusUnauthorized, StatusResponse{Error: msgInvalidRefresh})
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		// Invalid, expired and revoked tokens all look the same from outside.
		if errors.Is(err, core.ErrInvalidToken) || errors.Is(err, core.ErrTokenRevoked) {
			c.JSON(http.StatusUnauthorized, StatusResponse{Error: msgInvalidRefresh})
			return
		}
		h.internalError(c, err, StatusResponse{Error: msgInternal})
		return
	}

	h.cookies.setSession(c, tokens, h.authService.AccessTTL(), h.authService.RefreshTTL())
	c.JSON(http.StatusOK, StatusResponse{Success: true})
}

// Logout revokes the session's refresh token and clears the cookies
func (h *AuthHandlers) Logout(c *gin.Context) {
	if refreshToken := refreshTokenFrom(c); refreshToken != "" {
		err := h.authService.Logout(c.Request.Context(), refreshToken)
		if err != nil && !errors.Is(err, core.ErrInvalidToken) {
			h.internalError(c, err, StatusResponse{Error: msgInternal})
			return
		}
	}

	h.cookies.clearSession(c)
	c.JSON(http.StatusOK, StatusResponse{Success: true})
}

// Me returns the identity behind the access token
func (h *AuthHandlers) Me(c *gin.Context) {
	identity, exists := c.Get(identityKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"identity": identity})
}

// Health reports whether the backing store is reachable
func (h *AuthHandlers) Health(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.health.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandlers) internalError(c *gin.Context, err error, body any) {
	sentry.CaptureException(err)
	h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, body)
}

func intPtr(v int) *int {
	return &v
}
