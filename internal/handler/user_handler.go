package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/service"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
	"github.com/litholog/rock-registry-api/pkg/response"
)

// UserHandler wires admin user management and self-service profile endpoints.
type UserHandler struct {
	service *service.UserService
	limits  UploadLimits
}

// NewUserHandler creates a new handler.
func NewUserHandler(svc *service.UserService, limits UploadLimits) *UserHandler {
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = 2 << 20
	}
	if len(limits.AllowedMIMEs) == 0 {
		limits.AllowedMIMEs = map[string]bool{"image/jpeg": true, "image/png": true}
	}
	return &UserHandler{service: svc, limits: limits}
}

// List godoc
// @Summary List user accounts
// @Tags Users
// @Produce json
// @Param role query string false "Role filter"
// @Param active query string false "true or false"
// @Param search query string false "Name, email or school ID search"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var query dto.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	users, pagination, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// Create godoc
// @Summary Create a user account
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Update godoc
// @Summary Update a user account
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.UpdateUserRequest true "User payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// Deactivate godoc
// @Summary Deactivate a user account
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *UserHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reactivate godoc
// @Summary Reactivate a user account
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/activate [post]
func (h *UserHandler) Reactivate(c *gin.Context) {
	if err := h.service.Reactivate(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Profile godoc
// @Summary Get the current user's profile
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/me [get]
func (h *UserHandler) Profile(c *gin.Context) {
	user, err := h.service.Profile(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// UpdateProfile godoc
// @Summary Update the current user's profile
// @Description Accepts a full_name field plus an optional profile_photo file
// @Tags Users
// @Accept mpfd
// @Produce json
// @Param full_name formData string true "Display name"
// @Param profile_photo formData file false "Profile photo"
// @Success 204 "No Content"
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /users/me [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req dto.UpdateProfileRequest
	req.FullName = strings.TrimSpace(c.PostForm("full_name"))

	if fileHeader, err := c.FormFile("profile_photo"); err == nil {
		if fileHeader.Size > h.limits.MaxImageBytes {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "profile photo is too large"))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file"))
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, h.limits.MaxImageBytes+1))
		file.Close()
		if err != nil || int64(len(data)) > h.limits.MaxImageBytes {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "profile photo is too large"))
			return
		}
		mimeType := http.DetectContentType(data)
		if idx := strings.Index(mimeType, ";"); idx > 0 {
			mimeType = mimeType[:idx]
		}
		if !h.limits.AllowedMIMEs[mimeType] {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported photo type"))
			return
		}
		req.Photo = data
		req.PhotoMime = mimeType
	}

	if err := h.service.UpdateProfile(c.Request.Context(), claimsFromContext(c), req); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
