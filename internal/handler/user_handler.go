package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
	"github.com/openpermit/ahj-registry-api/pkg/response"
)

type userService interface {
	GetProfile(ctx context.Context, userID string) (*models.User, []string, error)
	GetByUsername(ctx context.Context, username string) (*models.User, []string, error)
	UpdateProfile(ctx context.Context, userID string, req dto.UpdateUserRequest) (*models.User, error)
	SetMaintainer(ctx context.Context, req dto.MaintainerRequest, actor *models.JWTClaims) error
	RevokeMaintainer(ctx context.Context, req dto.MaintainerRequest, actor *models.JWTClaims) error
}

// UserHandler exposes profile and maintainer endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs the handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// Me godoc
// @Summary Get the caller's profile
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	user, maintained, err := h.service.GetProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"user":            user,
		"maintained_ahjs": maintained,
	}, nil)
}

// Get godoc
// @Summary Get a user's public profile by username
// @Tags Users
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} response.Envelope
// @Router /users/{username} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, maintained, err := h.service.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"user":            user,
		"maintained_ahjs": maintained,
	}, nil)
}

// Update godoc
// @Summary Update the caller's profile
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.UpdateUserRequest true "Profile changes"
// @Success 200 {object} response.Envelope
// @Router /users/me [put]
func (h *UserHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid profile payload"))
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// SetMaintainer godoc
// @Summary Grant maintainer rights over an authority
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.MaintainerRequest true "Grant payload"
// @Success 204 {object} response.Envelope
// @Router /admin/maintainers [post]
func (h *UserHandler) SetMaintainer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.MaintainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid maintainer payload"))
		return
	}
	if req.Username == "" || req.AHJPK == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Username and AHJPK are required"))
		return
	}
	if err := h.service.SetMaintainer(c.Request.Context(), req, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RevokeMaintainer godoc
// @Summary Revoke maintainer rights over an authority
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.MaintainerRequest true "Revoke payload"
// @Success 204 {object} response.Envelope
// @Router /admin/maintainers [delete]
func (h *UserHandler) RevokeMaintainer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.MaintainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid maintainer payload"))
		return
	}
	if req.Username == "" || req.AHJPK == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Username and AHJPK are required"))
		return
	}
	if err := h.service.RevokeMaintainer(c.Request.Context(), req, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
