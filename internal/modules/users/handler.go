package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/pkg/response"
)

type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// List returns every user profile. Admin only.
func (h *Handler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list users failed")
		response.Error(c, http.StatusInternalServerError, "LIST_FAILED", "Could not list users")
		return
	}
	response.Success(c, http.StatusOK, toProfiles(list))
}

// Search matches the q parameter against names and emails.
func (h *Handler) Search(c *gin.Context) {
	list, err := h.service.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.log.Error().Err(err).Msg("user search failed")
		response.Error(c, http.StatusInternalServerError, "SEARCH_FAILED", "Could not search users")
		return
	}
	response.Success(c, http.StatusOK, toSummaries(list))
}

// Me returns the caller's own profile, resolved from the token.
func (h *Handler) Me(c *gin.Context) {
	userID := c.GetInt64("user_id")
	u, err := h.service.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.Error(c, http.StatusNotFound, "USER_NOT_FOUND", "Profile not found")
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("load profile failed")
		response.Error(c, http.StatusInternalServerError, "PROFILE_FAILED", "Could not load profile")
		return
	}
	response.Success(c, http.StatusOK, toProfile(u))
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	u, warnings, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "create user failed")
		return
	}

	body := gin.H{"user": toProfile(u)}
	if len(warnings) > 0 {
		body["warnings"] = warnings
	}
	response.Success(c, http.StatusCreated, body)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	u, warnings, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		h.writeError(c, err, "update user failed")
		return
	}

	body := gin.H{"user": toProfile(u)}
	if len(warnings) > 0 {
		body["warnings"] = warnings
	}
	response.Success(c, http.StatusOK, body)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err, "delete user failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, ErrUsernameTaken):
		response.Error(c, http.StatusConflict, "USERNAME_TAKEN", "Username already exists")
	case errors.Is(err, ErrInvalidRole):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Role must be admin or user")
	case errors.Is(err, ErrUpstream):
		h.log.Error().Err(err).Msg(logMsg)
		response.Error(c, http.StatusBadGateway, "IDENTITY_PROVIDER_ERROR", "Identity provider request failed")
	default:
		h.log.Error().Err(err).Msg(logMsg)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Request failed")
	}
}
