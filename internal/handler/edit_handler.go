package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
	"github.com/openpermit/ahj-registry-api/pkg/response"
)

type editService interface {
	SubmitUpdates(ctx context.Context, items []dto.UpdateEditItem, userID string) ([]models.Edit, error)
	SubmitAddition(ctx context.Context, req dto.CreateAdditionRequest, userID string) ([]models.Edit, error)
	SubmitDeletion(ctx context.Context, req dto.CreateDeletionRequest, userID string) ([]models.Edit, error)
	List(ctx context.Context, query dto.EditQuery) ([]models.Edit, error)
	Get(ctx context.Context, id int64) (*models.Edit, error)
	Review(ctx context.Context, req dto.ReviewEditRequest, actor *models.JWTClaims) (*models.Edit, error)
}

type applyTrigger interface {
	ApplyDueEdits(ctx context.Context) (int, error)
}

type reversalService interface {
	RevertEdit(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Edit, error)
	EditIsResettable(ctx context.Context, id int64) (bool, error)
	ResetEdit(ctx context.Context, id int64, forceResettable, skipUndo bool, actor *models.JWTClaims) (*models.Edit, error)
	MakePending(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Edit, error)
}

type editMetrics interface {
	RecordEditCreated(editType models.EditType)
	RecordEditReviewed(status models.ReviewStatus)
	RecordEditReverted()
}

// EditHandler exposes REST endpoints for the edit ledger.
type EditHandler struct {
	edits    editService
	apply    applyTrigger
	reversal reversalService
	metrics  editMetrics
}

// NewEditHandler constructs the handler. Metrics may be nil.
func NewEditHandler(edits editService, apply applyTrigger, reversal reversalService, metrics editMetrics) *EditHandler {
	return &EditHandler{edits: edits, apply: apply, reversal: reversal, metrics: metrics}
}

// SubmitUpdates godoc
// @Summary Propose field updates
// @Tags Edits
// @Accept json
// @Produce json
// @Param payload body []dto.UpdateEditItem true "Batch of field updates"
// @Success 201 {object} response.Envelope
// @Router /edits/update [post]
func (h *EditHandler) SubmitUpdates(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var items []dto.UpdateEditItem
	if err := c.ShouldBindJSON(&items); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit payload"))
		return
	}
	edits, err := h.edits.SubmitUpdates(c.Request.Context(), items, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordCreated(edits)
	response.JSON(c, http.StatusCreated, edits, nil)
}

// SubmitAddition godoc
// @Summary Propose new sub-records
// @Tags Edits
// @Accept json
// @Produce json
// @Param payload body dto.CreateAdditionRequest true "Addition payload"
// @Success 201 {object} response.Envelope
// @Router /edits/add [post]
func (h *EditHandler) SubmitAddition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateAdditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid addition payload"))
		return
	}
	edits, err := h.edits.SubmitAddition(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordCreated(edits)
	response.JSON(c, http.StatusCreated, edits, nil)
}

// SubmitDeletion godoc
// @Summary Propose sub-record removals
// @Tags Edits
// @Accept json
// @Produce json
// @Param payload body dto.CreateDeletionRequest true "Deletion payload"
// @Success 201 {object} response.Envelope
// @Router /edits/delete [post]
func (h *EditHandler) SubmitDeletion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateDeletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid deletion payload"))
		return
	}
	edits, err := h.edits.SubmitDeletion(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordCreated(edits)
	response.JSON(c, http.StatusCreated, edits, nil)
}

// List godoc
// @Summary List ledger entries
// @Tags Edits
// @Produce json
// @Param ahj_pk query string false "Authority primary key"
// @Param changed_by query string false "Submitting user id"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /edits [get]
func (h *EditHandler) List(c *gin.Context) {
	query := dto.EditQuery{
		AHJPK:     strings.TrimSpace(c.Query("ahj_pk")),
		ChangedBy: strings.TrimSpace(c.Query("changed_by")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ReviewStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ReviewStatus(part))
		}
		query.Status = statuses
	}
	edits, err := h.edits.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edits, nil)
}

// Get godoc
// @Summary Get a ledger entry
// @Tags Edits
// @Produce json
// @Param id path int true "Edit ID"
// @Success 200 {object} response.Envelope
// @Router /edits/{id} [get]
func (h *EditHandler) Get(c *gin.Context) {
	id, ok := h.editID(c)
	if !ok {
		return
	}
	edit, err := h.edits.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edit, nil)
}

// Review godoc
// @Summary Approve or reject a pending edit
// @Tags Edits
// @Accept json
// @Produce json
// @Param payload body dto.ReviewEditRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /edits/review [post]
func (h *EditHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	if req.EditID == 0 || req.Status == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "EditID and Status are required"))
		return
	}
	edit, err := h.edits.Review(c.Request.Context(), req, claims)
	if err != nil {
		// Reviewing an edit that does not exist is a malformed request,
		// not a lookup miss.
		if errors.Is(err, appErrors.ErrNotFound) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown edit"))
			return
		}
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordEditReviewed(edit.ReviewStatus)
	}
	response.JSON(c, http.StatusOK, edit, nil)
}

// ApplyDue godoc
// @Summary Apply all approved edits past their effective date
// @Tags Edits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/edits/apply [post]
func (h *EditHandler) ApplyDue(c *gin.Context) {
	applied, err := h.apply.ApplyDueEdits(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"applied": applied}, nil)
}

// Revert godoc
// @Summary Undo an applied edit with an inverse edit
// @Tags Edits
// @Produce json
// @Param id path int true "Edit ID"
// @Success 200 {object} response.Envelope
// @Router /edits/{id}/revert [post]
func (h *EditHandler) Revert(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, ok := h.editID(c)
	if !ok {
		return
	}
	inverse, err := h.reversal.RevertEdit(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if inverse == nil {
		response.JSON(c, http.StatusOK, gin.H{"reverted": false}, nil)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordEditReverted()
	}
	response.JSON(c, http.StatusOK, inverse, nil)
}

// Resettable godoc
// @Summary Check whether an edit can be returned to pending
// @Tags Edits
// @Produce json
// @Param id path int true "Edit ID"
// @Success 200 {object} response.Envelope
// @Router /edits/{id}/resettable [get]
func (h *EditHandler) Resettable(c *gin.Context) {
	id, ok := h.editID(c)
	if !ok {
		return
	}
	resettable, err := h.reversal.EditIsResettable(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"resettable": resettable}, nil)
}

// Reset godoc
// @Summary Return a reviewed edit to pending
// @Tags Edits
// @Accept json
// @Produce json
// @Param id path int true "Edit ID"
// @Param payload body dto.ResetEditRequest false "Reset overrides"
// @Success 200 {object} response.Envelope
// @Router /edits/{id}/reset [post]
func (h *EditHandler) Reset(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, ok := h.editID(c)
	if !ok {
		return
	}
	var req dto.ResetEditRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reset payload"))
			return
		}
	}
	edit, err := h.reversal.ResetEdit(c.Request.Context(), id, req.ForceResettable, req.SkipUndo, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edit, nil)
}

// MakePending godoc
// @Summary Clear a review outcome without touching the record store
// @Tags Edits
// @Produce json
// @Param id path int true "Edit ID"
// @Success 200 {object} response.Envelope
// @Router /edits/{id}/pending [post]
func (h *EditHandler) MakePending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, ok := h.editID(c)
	if !ok {
		return
	}
	edit, err := h.reversal.MakePending(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edit, nil)
}

func (h *EditHandler) editID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit id"))
		return 0, false
	}
	return id, true
}

func (h *EditHandler) recordCreated(edits []models.Edit) {
	if h.metrics == nil {
		return
	}
	for i := range edits {
		h.metrics.RecordEditCreated(edits[i].EditType)
	}
}
