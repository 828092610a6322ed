package auth

import (
	"errors"
	"net/http"

	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RefreshCookieName is the fixed cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// Handler manages all HTTP interactions for sessions.
type Handler struct {
	service      *Service
	log          *logger.Logger
	cookieSecure bool
}

func NewHandler(service *Service, log *logger.Logger, cookieSecure bool) *Handler {
	return &Handler{service: service, log: log, cookieSecure: cookieSecure}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/logout", h.Logout)
	}
}

// Login verifies credentials, sets the refresh cookie and returns the
// access token with the user payload.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	session, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Username or password is incorrect")
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		response.Error(c, http.StatusInternalServerError, "LOGIN_FAILED", "Failed to login")
		return
	}

	h.setRefreshCookie(c, session.RefreshToken, session.RefreshTTLSeconds)
	response.Success(c, http.StatusOK, gin.H{
		"access_token": session.AccessToken,
		"user":         toUserPayload(session.User),
	})
}

// Refresh rotates the cookie token. Any invalid presentation clears the
// cookie so the client stops retrying with a dead token.
func (h *Handler) Refresh(c *gin.Context) {
	raw, err := c.Cookie(RefreshCookieName)
	if err != nil || raw == "" {
		h.clearRefreshCookie(c)
		response.Error(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is missing or invalid")
		return
	}

	session, err := h.service.Refresh(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			h.clearRefreshCookie(c)
			response.Error(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is missing or invalid")
			return
		}
		h.log.Error().Err(err).Msg("refresh failed")
		response.Error(c, http.StatusInternalServerError, "REFRESH_FAILED", "Failed to refresh session")
		return
	}

	h.setRefreshCookie(c, session.RefreshToken, session.RefreshTTLSeconds)
	response.Success(c, http.StatusOK, gin.H{
		"access_token": session.AccessToken,
		"user":         toUserPayload(session.User),
	})
}

// Logout never fails visibly: revocation is best effort, the cookie is
// always cleared.
func (h *Handler) Logout(c *gin.Context) {
	if raw, err := c.Cookie(RefreshCookieName); err == nil && raw != "" {
		if err := h.service.Logout(c.Request.Context(), raw); err != nil {
			h.log.Warn().Err(err).Msg("logout revocation failed")
		}
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, value, maxAge, "/", "", h.cookieSecure, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, "", -1, "/", "", h.cookieSecure, true)
}
