package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	"github.com/openpermit/ahj-registry-api/pkg/config"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
	"github.com/openpermit/ahj-registry-api/pkg/export"
)

type ahjStore interface {
	Search(ctx context.Context, filter models.AHJFilter) ([]models.AHJ, int, error)
	GetByPK(ctx context.Context, pk string) (*models.AHJ, error)
	ListContacts(ctx context.Context, ahjPK string) ([]models.Contact, error)
	ListInspections(ctx context.Context, ahjPK string) ([]models.Inspection, error)
	ListEngineeringReviewRequirements(ctx context.Context, ahjPK string) ([]models.EngineeringReviewRequirement, error)
	ListFeeStructures(ctx context.Context, ahjPK string) ([]models.FeeStructure, error)
}

type editActivityLister interface {
	ListLatestByAHJ(ctx context.Context, ahjPK string, limit int) ([]models.Edit, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AHJService serves the public registry: search, single view, and exports.
type AHJService struct {
	ahjs   ahjStore
	edits  editActivityLister
	cache  resultCache
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	cfg    config.SearchConfig
	logger *zap.Logger
}

// NewAHJService constructs the service.
func NewAHJService(ahjs ahjStore, edits editActivityLister, cache resultCache, cfg config.SearchConfig, logger *zap.Logger) *AHJService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AHJService{
		ahjs:   ahjs,
		edits:  edits,
		cache:  cache,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		cfg:    cfg,
		logger: logger,
	}
}

// Search returns matching authorities. Results are cached briefly keyed by
// the full filter.
func (s *AHJService) Search(ctx context.Context, req dto.SearchAHJRequest) (*dto.SearchAHJResponse, error) {
	filter := s.toFilter(req)

	key := searchCacheKey(filter)
	if s.cache != nil {
		var cached dto.SearchAHJResponse
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("search cache read failed", zap.Error(err))
		}
	}

	ahjs, total, err := s.ahjs.Search(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search authorities")
	}
	resp := &dto.SearchAHJResponse{AHJList: ahjs, Total: total}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("search cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// GetView returns a single authority with its sub-records split by
// confirmation status, plus recent ledger activity projected onto the view.
func (s *AHJService) GetView(ctx context.Context, pk string) (*dto.AHJView, []models.Edit, error) {
	ahj, err := s.ahjs.GetByPK(ctx, pk)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load authority")
	}
	view := &dto.AHJView{AHJ: *ahj}

	contacts, err := s.ahjs.ListContacts(ctx, pk)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contacts")
	}
	for _, c := range contacts {
		switch {
		case c.Confirmed == nil:
			view.UnconfirmedContacts = append(view.UnconfirmedContacts, c)
		case *c.Confirmed:
			view.Contacts = append(view.Contacts, c)
		}
	}

	inspections, err := s.ahjs.ListInspections(ctx, pk)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load inspections")
	}
	for _, in := range inspections {
		switch {
		case in.Confirmed == nil:
			view.UnconfirmedInspections = append(view.UnconfirmedInspections, in)
		case *in.Confirmed:
			view.Inspections = append(view.Inspections, in)
		}
	}

	requirements, err := s.ahjs.ListEngineeringReviewRequirements(ctx, pk)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review requirements")
	}
	for _, req := range requirements {
		switch {
		case req.Confirmed == nil:
			view.UnconfirmedRequirements = append(view.UnconfirmedRequirements, req)
		case *req.Confirmed:
			view.EngineeringReviewRequirements = append(view.EngineeringReviewRequirements, req)
		}
	}

	fees, err := s.ahjs.ListFeeStructures(ctx, pk)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structures")
	}
	for _, fee := range fees {
		switch {
		case fee.Confirmed == nil:
			view.UnconfirmedFeeStructures = append(view.UnconfirmedFeeStructures, fee)
		case *fee.Confirmed:
			view.FeeStructures = append(view.FeeStructures, fee)
		}
	}

	editsCap := s.cfg.LatestEditsCap
	if editsCap <= 0 {
		editsCap = 10
	}
	latest, err := s.edits.ListLatestByAHJ(ctx, pk, editsCap)
	if err != nil {
		s.logger.Warn("failed to load recent ledger activity", zap.String("ahj_pk", pk), zap.Error(err))
		latest = nil
	}
	return view, latest, nil
}

// ProjectEdits overlays the new values of approved, not yet applied edits on
// the authority's own columns so clients can preview upcoming changes. The
// input view is not modified.
func ProjectEdits(view dto.AHJView, edits []models.Edit) dto.AHJView {
	projected := view
	for i := range edits {
		e := &edits[i]
		if e.SourceTable != "ahjs" || e.SourceRow != view.AHJPK {
			continue
		}
		if e.ReviewStatus != models.ReviewStatusApproved || e.IsApplied {
			continue
		}
		switch e.SourceColumn {
		case "ahj_name":
			projected.AHJName = e.NewValue
		case "ahj_code":
			projected.AHJCode = e.NewValue
		case "ahj_level_code":
			projected.AHJLevelCode = e.NewValue
		case "state_province":
			projected.StateProvince = e.NewValue
		case "description":
			projected.Description = e.NewValue
		case "url":
			projected.URL = e.NewValue
		case "building_code":
			projected.BuildingCode = e.NewValue
		case "electric_code":
			projected.ElectricCode = e.NewValue
		case "fire_code":
			projected.FireCode = e.NewValue
		case "residential_code":
			projected.ResidentialCode = e.NewValue
		case "wind_code":
			projected.WindCode = e.NewValue
		}
	}
	return projected
}

// ExportSearch renders the search results in the requested format. Supported
// formats are "csv" and "pdf".
func (s *AHJService) ExportSearch(ctx context.Context, req dto.SearchAHJRequest, format string) ([]byte, string, error) {
	resp, err := s.Search(ctx, req)
	if err != nil {
		return nil, "", err
	}
	data := export.Dataset{
		Headers: []string{"AHJPK", "Name", "Code", "Level", "State", "Building Code", "Electric Code", "Fire Code", "Residential Code", "Wind Code"},
	}
	for _, ahj := range resp.AHJList {
		data.Rows = append(data.Rows, map[string]string{
			"AHJPK":            ahj.AHJPK,
			"Name":             ahj.AHJName,
			"Code":             ahj.AHJCode,
			"Level":            ahj.AHJLevelCode,
			"State":            ahj.StateProvince,
			"Building Code":    ahj.BuildingCode,
			"Electric Code":    ahj.ElectricCode,
			"Fire Code":        ahj.FireCode,
			"Residential Code": ahj.ResidentialCode,
			"Wind Code":        ahj.WindCode,
		})
	}
	switch format {
	case "csv":
		payload, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(data, "AHJ Registry")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *AHJService) toFilter(req dto.SearchAHJRequest) models.AHJFilter {
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	return models.AHJFilter{
		AHJName:         req.AHJName,
		AHJID:           req.AHJID,
		AHJPK:           req.AHJPK,
		AHJCode:         req.AHJCode,
		AHJLevelCode:    req.AHJLevelCode,
		StateProvince:   req.StateProvince,
		BuildingCode:    req.BuildingCode,
		ElectricCode:    req.ElectricCode,
		FireCode:        req.FireCode,
		ResidentialCode: req.ResidentialCode,
		WindCode:        req.WindCode,
		Limit:           limit,
		Offset:          offset,
	}
}

func searchCacheKey(filter models.AHJFilter) string {
	payload, err := json.Marshal(filter)
	if err != nil {
		return "ahj:search:unkeyed"
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("ahj:search:%s", hex.EncodeToString(sum[:8]))
}
