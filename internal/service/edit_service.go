package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

type editStore interface {
	Create(ctx context.Context, edit *models.Edit) error
	CreateTx(ctx context.Context, ext sqlx.ExtContext, edit *models.Edit) error
	GetByID(ctx context.Context, id int64) (*models.Edit, error)
	GetByIDTx(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.Edit, error)
	List(ctx context.Context, filter models.EditFilter) ([]models.Edit, error)
	ListDue(ctx context.Context, now time.Time) ([]models.Edit, error)
	SetReview(ctx context.Context, id int64, status models.ReviewStatus, approvedBy string, dateEffective *time.Time) error
	MarkApplied(ctx context.Context, ext sqlx.ExtContext, id int64, oldValue string) error
	SetApplied(ctx context.Context, ext sqlx.ExtContext, id int64, applied bool) error
	MakePending(ctx context.Context, ext sqlx.ExtContext, id int64) error
	LatestAppliedOnField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef) (*models.Edit, error)
	AppliedOnFieldBefore(ctx context.Context, ext sqlx.ExtContext, edit *models.Edit) (*models.Edit, error)
}

type fieldStore interface {
	ValidateField(ref models.FieldRef) error
	SupportsConfirmed(table string) bool
	ReadField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef) (string, error)
	WriteField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef, value string) error
	CreateRow(ctx context.Context, ext sqlx.ExtContext, table string, values map[string]string) (string, error)
}

type maintainerChecker interface {
	IsMaintainer(ctx context.Context, userID, ahjPK string) (bool, error)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EditService handles edit submission, listing and review.
type EditService struct {
	edits       editStore
	records     fieldStore
	maintainers maintainerChecker
	tx          txRunner
	audit       auditLogger
	logger      *zap.Logger
	grace       time.Duration
	now         func() time.Time
}

// NewEditService constructs the service. Grace is the delay between approval
// and the edit becoming effective.
func NewEditService(edits editStore, records fieldStore, maintainers maintainerChecker, tx txRunner, audit auditLogger, logger *zap.Logger, grace time.Duration) *EditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditService{
		edits:       edits,
		records:     records,
		maintainers: maintainers,
		tx:          tx,
		audit:       audit,
		logger:      logger,
		grace:       grace,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitUpdates records one pending update edit per item. The current field
// value is captured as the proposal-time old value in the same transaction
// that inserts the ledger row.
func (s *EditService) SubmitUpdates(ctx context.Context, items []dto.UpdateEditItem, userID string) ([]models.Edit, error) {
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one edit is required")
	}
	created := make([]models.Edit, 0, len(items))
	for _, item := range items {
		if item.AHJPK == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "AHJPK is required")
		}
		ref := models.FieldRef{Table: item.SourceTable, Row: item.SourceRow, Column: item.SourceColumn}
		if err := s.records.ValidateField(ref); err != nil {
			return nil, err
		}
		edit := models.Edit{
			ChangedBy:     userID,
			SourceTable:   ref.Table,
			SourceRow:     ref.Row,
			SourceColumn:  ref.Column,
			NewValue:      item.NewValue,
			EditType:      models.EditTypeUpdate,
			ReviewStatus:  models.ReviewStatusPending,
			DateRequested: s.now(),
			AHJPK:         item.AHJPK,
		}
		err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
			current, err := s.records.ReadField(ctx, ext, ref)
			if err != nil {
				return err
			}
			edit.OldValue = current
			return s.edits.CreateTx(ctx, ext, &edit)
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "target row not found")
			}
			if appErr := asAppError(err); appErr != nil {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create edit")
		}
		created = append(created, edit)
	}
	s.emitAudit(ctx, userID, models.AuditActionEditCreate, created)
	return created, nil
}

// SubmitAddition creates unconfirmed rows and one pending addition edit per
// row. Applying the edit later confirms the row.
func (s *EditService) SubmitAddition(ctx context.Context, req dto.CreateAdditionRequest, userID string) ([]models.Edit, error) {
	if req.AHJPK == "" || req.SourceTable == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "SourceTable and AHJPK are required")
	}
	if !s.records.SupportsConfirmed(req.SourceTable) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "table does not support additions")
	}
	if len(req.Value) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one row is required")
	}
	created := make([]models.Edit, 0, len(req.Value))
	for _, values := range req.Value {
		row := make(map[string]string, len(values)+1)
		for k, v := range values {
			row[k] = v
		}
		row["ahj_pk"] = req.AHJPK
		edit := models.Edit{
			ChangedBy:     userID,
			SourceTable:   req.SourceTable,
			SourceColumn:  "confirmed",
			OldValue:      "",
			NewValue:      "True",
			EditType:      models.EditTypeAddition,
			ReviewStatus:  models.ReviewStatusPending,
			DateRequested: s.now(),
			AHJPK:         req.AHJPK,
		}
		err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
			rowID, err := s.records.CreateRow(ctx, ext, req.SourceTable, row)
			if err != nil {
				return err
			}
			edit.SourceRow = rowID
			return s.edits.CreateTx(ctx, ext, &edit)
		})
		if err != nil {
			if appErr := asAppError(err); appErr != nil {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create addition")
		}
		created = append(created, edit)
	}
	s.emitAudit(ctx, userID, models.AuditActionEditCreate, created)
	return created, nil
}

// SubmitDeletion creates one pending deletion edit per targeted row.
// Applying the edit later unconfirms the row.
func (s *EditService) SubmitDeletion(ctx context.Context, req dto.CreateDeletionRequest, userID string) ([]models.Edit, error) {
	if req.AHJPK == "" || req.SourceTable == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "SourceTable and AHJPK are required")
	}
	if !s.records.SupportsConfirmed(req.SourceTable) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "table does not support deletions")
	}
	if len(req.Value) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one row id is required")
	}
	created := make([]models.Edit, 0, len(req.Value))
	for _, rowID := range req.Value {
		ref := models.FieldRef{Table: req.SourceTable, Row: rowID, Column: "confirmed"}
		edit := models.Edit{
			ChangedBy:     userID,
			SourceTable:   req.SourceTable,
			SourceRow:     rowID,
			SourceColumn:  "confirmed",
			OldValue:      "True",
			NewValue:      "False",
			EditType:      models.EditTypeDeletion,
			ReviewStatus:  models.ReviewStatusPending,
			DateRequested: s.now(),
			AHJPK:         req.AHJPK,
		}
		err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
			current, err := s.records.ReadField(ctx, ext, ref)
			if err != nil {
				return err
			}
			edit.OldValue = current
			return s.edits.CreateTx(ctx, ext, &edit)
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "target row not found")
			}
			if appErr := asAppError(err); appErr != nil {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create deletion")
		}
		created = append(created, edit)
	}
	s.emitAudit(ctx, userID, models.AuditActionEditCreate, created)
	return created, nil
}

// List returns ledger rows matching the query. The ledger is public.
func (s *EditService) List(ctx context.Context, query dto.EditQuery) ([]models.Edit, error) {
	filter := models.EditFilter{
		AHJPK:     strings.TrimSpace(query.AHJPK),
		ChangedBy: strings.TrimSpace(query.ChangedBy),
		Status:    query.Status,
	}
	edits, err := s.edits.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list edits")
	}
	return edits, nil
}

// Get returns a single ledger row.
func (s *EditService) Get(ctx context.Context, id int64) (*models.Edit, error) {
	edit, err := s.edits.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load edit")
	}
	return edit, nil
}

// Review records an approval or rejection. Approval stamps the effective
// date at decision time plus the configured grace; application happens
// separately once the date passes.
func (s *EditService) Review(ctx context.Context, req dto.ReviewEditRequest, actor *models.JWTClaims) (*models.Edit, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.Status != models.ReviewStatusApproved && req.Status != models.ReviewStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}
	edit, err := s.edits.GetByID(ctx, req.EditID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load edit")
	}
	if err := moderationAllowed(ctx, s.maintainers, actor, edit.AHJPK); err != nil {
		return nil, err
	}
	if edit.ReviewStatus != models.ReviewStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "edit already reviewed")
	}

	var dateEffective *time.Time
	if req.Status == models.ReviewStatusApproved {
		effective := s.now().Add(s.grace)
		dateEffective = &effective
	}
	if err := s.edits.SetReview(ctx, req.EditID, req.Status, actor.UserID, dateEffective); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "edit already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review edit")
	}
	edit.ReviewStatus = req.Status
	edit.ApprovedBy = &actor.UserID
	edit.DateEffective = dateEffective
	s.emitAudit(ctx, actor.UserID, models.AuditActionEditReview, []models.Edit{*edit})
	return edit, nil
}

// moderationAllowed grants review, revert and reset rights to admins and to
// active maintainers of the targeted authority.
func moderationAllowed(ctx context.Context, maintainers maintainerChecker, actor *models.JWTClaims, ahjPK string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	ok, err := maintainers.IsMaintainer(ctx, actor.UserID, ahjPK)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check maintainer")
	}
	if !ok {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *EditService) emitAudit(ctx context.Context, userID, action string, edits []models.Edit) {
	if s.audit == nil {
		return
	}
	for i := range edits {
		id := formatEditID(edits[i].EditID)
		log := &models.AuditLog{
			UserID:     &userID,
			Action:     action,
			Resource:   "edit",
			ResourceID: &id,
			OldValues:  []byte(edits[i].OldValue),
			NewValues:  []byte(edits[i].NewValue),
			IPAddress:  "system",
			UserAgent:  "edit-service",
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}
}

func formatEditID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func asAppError(err error) *appErrors.Error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
