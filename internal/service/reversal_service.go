package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

// ReversalService undoes applied edits and returns reviewed edits to the
// pending state. Reversal never rewrites ledger history: undoing an applied
// edit records a new, already-applied inverse edit.
type ReversalService struct {
	edits       editStore
	records     fieldStore
	maintainers maintainerChecker
	tx          txRunner
	audit       auditLogger
	logger      *zap.Logger
	now         func() time.Time
}

// NewReversalService constructs the service.
func NewReversalService(edits editStore, records fieldStore, maintainers maintainerChecker, tx txRunner, audit auditLogger, logger *zap.Logger) *ReversalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReversalService{
		edits:       edits,
		records:     records,
		maintainers: maintainers,
		tx:          tx,
		audit:       audit,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RevertEdit writes the edit's old value back to the store and records an
// approved, already-applied inverse edit attributed to the actor. Reverting
// an unapplied edit, or one whose field already holds the old value, is a
// no-op and returns nil.
func (s *ReversalService) RevertEdit(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Edit, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var inverse *models.Edit
	err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		edit, err := s.edits.GetByIDTx(ctx, ext, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return err
		}
		if err := moderationAllowed(ctx, s.maintainers, actor, edit.AHJPK); err != nil {
			return err
		}
		if !edit.IsApplied {
			return nil
		}
		ref := edit.FieldRef()
		current, err := s.records.ReadField(ctx, ext, ref)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConsistency, "edit target row no longer exists")
			}
			return err
		}
		if current == edit.OldValue {
			return nil
		}
		now := s.now()
		candidate := &models.Edit{
			ChangedBy:     actor.UserID,
			ApprovedBy:    &actor.UserID,
			SourceTable:   edit.SourceTable,
			SourceRow:     edit.SourceRow,
			SourceColumn:  edit.SourceColumn,
			OldValue:      current,
			NewValue:      edit.OldValue,
			EditType:      edit.EditType,
			ReviewStatus:  models.ReviewStatusApproved,
			DateRequested: now,
			DateEffective: &now,
			IsApplied:     true,
			AHJPK:         edit.AHJPK,
		}
		if err := s.records.WriteField(ctx, ext, ref, edit.OldValue); err != nil {
			return err
		}
		if err := s.edits.CreateTx(ctx, ext, candidate); err != nil {
			return err
		}
		inverse = candidate
		return nil
	})
	if err != nil {
		if appErr := asAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revert edit")
	}
	if inverse != nil {
		s.emitAudit(ctx, actor.UserID, models.AuditActionEditRevert, inverse)
	}
	return inverse, nil
}

// EditIsResettable reports whether the edit may be returned to pending
// without corrupting later history. Rejected edits always may; approved
// unapplied edits may; an approved applied edit may only when it is the
// latest applied change to its field.
func (s *ReversalService) EditIsResettable(ctx context.Context, id int64) (bool, error) {
	var resettable bool
	err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		edit, err := s.edits.GetByIDTx(ctx, ext, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return err
		}
		resettable, err = s.resettable(ctx, ext, edit)
		return err
	})
	if err != nil {
		if appErr := asAppError(err); appErr != nil {
			return false, appErr
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check edit")
	}
	return resettable, nil
}

func (s *ReversalService) resettable(ctx context.Context, ext sqlx.ExtContext, edit *models.Edit) (bool, error) {
	switch edit.ReviewStatus {
	case models.ReviewStatusRejected:
		return true, nil
	case models.ReviewStatusApproved:
		if !edit.IsApplied {
			return true, nil
		}
		latest, err := s.edits.LatestAppliedOnField(ctx, ext, edit.FieldRef())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, appErrors.Clone(appErrors.ErrConsistency, "applied edit missing from field history")
			}
			return false, err
		}
		return latest.EditID == edit.EditID, nil
	default:
		return false, nil
	}
}

// ResetEdit returns a reviewed edit to pending. An applied edit is undone in
// the store first unless skipUndo is set; forceResettable bypasses the
// latest-applied safety check.
func (s *ReversalService) ResetEdit(ctx context.Context, id int64, forceResettable, skipUndo bool, actor *models.JWTClaims) (*models.Edit, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var reset *models.Edit
	err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		edit, err := s.edits.GetByIDTx(ctx, ext, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return err
		}
		if err := moderationAllowed(ctx, s.maintainers, actor, edit.AHJPK); err != nil {
			return err
		}
		if edit.ReviewStatus == models.ReviewStatusPending {
			return appErrors.Clone(appErrors.ErrConflict, "edit is already pending")
		}
		if !forceResettable {
			ok, err := s.resettable(ctx, ext, edit)
			if err != nil {
				return err
			}
			if !ok {
				return appErrors.Clone(appErrors.ErrConflict, "a newer applied edit exists for this field")
			}
		}
		if edit.IsApplied && !skipUndo {
			if err := s.records.WriteField(ctx, ext, edit.FieldRef(), edit.OldValue); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrConsistency, "edit target row no longer exists")
				}
				return err
			}
		}
		if err := s.edits.MakePending(ctx, ext, edit.EditID); err != nil {
			return err
		}
		edit.ReviewStatus = models.ReviewStatusPending
		edit.ApprovedBy = nil
		edit.DateEffective = nil
		edit.IsApplied = false
		reset = edit
		return nil
	})
	if err != nil {
		if appErr := asAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset edit")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionEditReset, reset)
	return reset, nil
}

// MakePending clears the review outcome without touching the store. Intended
// for correcting review mistakes before the edit becomes effective.
func (s *ReversalService) MakePending(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Edit, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var pending *models.Edit
	err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		edit, err := s.edits.GetByIDTx(ctx, ext, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return err
		}
		if err := moderationAllowed(ctx, s.maintainers, actor, edit.AHJPK); err != nil {
			return err
		}
		if err := s.edits.MakePending(ctx, ext, edit.EditID); err != nil {
			return err
		}
		edit.ReviewStatus = models.ReviewStatusPending
		edit.ApprovedBy = nil
		edit.DateEffective = nil
		edit.IsApplied = false
		pending = edit
		return nil
	})
	if err != nil {
		if appErr := asAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset edit")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionEditReset, pending)
	return pending, nil
}

func (s *ReversalService) emitAudit(ctx context.Context, userID, action string, edit *models.Edit) {
	if s.audit == nil || edit == nil {
		return
	}
	id := formatEditID(edit.EditID)
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "edit",
		ResourceID: &id,
		OldValues:  []byte(edit.OldValue),
		NewValues:  []byte(edit.NewValue),
		IPAddress:  "system",
		UserAgent:  "reversal-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
