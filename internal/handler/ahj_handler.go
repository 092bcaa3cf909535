package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	"github.com/openpermit/ahj-registry-api/internal/service"
	"github.com/openpermit/ahj-registry-api/pkg/config"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
	"github.com/openpermit/ahj-registry-api/pkg/response"
)

type ahjService interface {
	Search(ctx context.Context, req dto.SearchAHJRequest) (*dto.SearchAHJResponse, error)
	GetView(ctx context.Context, pk string) (*dto.AHJView, []models.Edit, error)
	ExportSearch(ctx context.Context, req dto.SearchAHJRequest, format string) ([]byte, string, error)
}

// AHJHandler exposes the public registry endpoints.
type AHJHandler struct {
	service ahjService
	exports config.ExportsConfig
}

// NewAHJHandler constructs the handler.
func NewAHJHandler(svc ahjService, exports config.ExportsConfig) *AHJHandler {
	return &AHJHandler{service: svc, exports: exports}
}

// Search godoc
// @Summary Search authorities
// @Tags AHJs
// @Accept json
// @Produce json
// @Param payload body dto.SearchAHJRequest true "Search filters"
// @Success 200 {object} response.Envelope
// @Router /ahjs/search [post]
func (h *AHJHandler) Search(c *gin.Context) {
	var req dto.SearchAHJRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid search payload"))
		return
	}
	res, err := h.service.Search(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Get godoc
// @Summary Get a single authority with its sub-records
// @Tags AHJs
// @Produce json
// @Param id path string true "Authority primary key"
// @Param preview query bool false "Overlay approved unapplied edits"
// @Success 200 {object} response.Envelope
// @Router /ahjs/{id} [get]
func (h *AHJHandler) Get(c *gin.Context) {
	view, latest, err := h.service.GetView(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if c.Query("preview") == "true" {
		projected := service.ProjectEdits(*view, latest)
		view = &projected
	}
	response.JSON(c, http.StatusOK, view, nil, map[string]interface{}{
		"latest_edits": latest,
	})
}

// Export godoc
// @Summary Export search results as CSV or PDF
// @Tags AHJs
// @Produce octet-stream
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Router /ahjs/export [get]
func (h *AHJHandler) Export(c *gin.Context) {
	if !h.exports.Enabled {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	req := dto.SearchAHJRequest{
		AHJName:       strings.TrimSpace(c.Query("name")),
		StateProvince: strings.TrimSpace(c.Query("state")),
		AHJLevelCode:  strings.TrimSpace(c.Query("level")),
	}
	if codes := c.Query("building_code"); codes != "" {
		req.BuildingCode = splitCodes(codes)
	}
	if codes := c.Query("electric_code"); codes != "" {
		req.ElectricCode = splitCodes(codes)
	}
	if codes := c.Query("fire_code"); codes != "" {
		req.FireCode = splitCodes(codes)
	}
	if codes := c.Query("residential_code"); codes != "" {
		req.ResidentialCode = splitCodes(codes)
	}
	if codes := c.Query("wind_code"); codes != "" {
		req.WindCode = splitCodes(codes)
	}

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	payload, contentType, err := h.service.ExportSearch(c.Request.Context(), req, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ahj-registry.`+format+`"`)
	c.Data(http.StatusOK, contentType, payload)
}

func splitCodes(raw string) []string {
	parts := strings.Split(raw, ",")
	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			codes = append(codes, part)
		}
	}
	return codes
}
