package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

// applyRecorder lets the metrics layer observe apply outcomes without the
// engine depending on prometheus directly.
type applyRecorder interface {
	RecordEditApplied(editType models.EditType)
}

// ApplyService pushes approved, due edits into the record store. Application
// is idempotent: an already-applied edit is never applied twice, and each
// edit is processed in its own transaction.
type ApplyService struct {
	edits    editStore
	records  fieldStore
	tx       txRunner
	logger   *zap.Logger
	recorder applyRecorder
	now      func() time.Time
}

// NewApplyService constructs the engine.
func NewApplyService(edits editStore, records fieldStore, tx txRunner, logger *zap.Logger, recorder applyRecorder) *ApplyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplyService{
		edits:    edits,
		records:  records,
		tx:       tx,
		logger:   logger,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ApplyDueEdits loads every approved edit whose effective date has passed
// and applies it. Returns the number of edits applied. Suitable as a sweep
// function for the background job runner.
func (s *ApplyService) ApplyDueEdits(ctx context.Context) (int, error) {
	due, err := s.edits.ListDue(ctx, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load due edits")
	}
	return s.ApplyEdits(ctx, due)
}

// ApplyEdits applies the given edits in canonical order: effective date
// ascending, ledger id breaking ties. A failure on one edit is logged and
// does not block the rest.
func (s *ApplyService) ApplyEdits(ctx context.Context, edits []models.Edit) (int, error) {
	sorted := make([]models.Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderedBefore(&sorted[j])
	})

	applied := 0
	var lastErr error
	for i := range sorted {
		ok, err := s.applyOne(ctx, sorted[i].EditID)
		if err != nil {
			s.logger.Error("failed to apply edit",
				zap.Int64("edit_id", sorted[i].EditID),
				zap.Error(err))
			lastErr = err
			continue
		}
		if ok {
			applied++
			if s.recorder != nil {
				s.recorder.RecordEditApplied(sorted[i].EditType)
			}
		}
	}
	if lastErr != nil {
		return applied, appErrors.Wrap(lastErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			fmt.Sprintf("applied %d edits with failures", applied))
	}
	return applied, nil
}

// applyOne applies a single edit inside one transaction. Returns false when
// the edit turned out to be ineligible (already applied, no longer approved).
func (s *ApplyService) applyOne(ctx context.Context, id int64) (bool, error) {
	var didApply bool
	err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		edit, err := s.edits.GetByIDTx(ctx, ext, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConsistency, "due edit disappeared from ledger")
			}
			return err
		}
		if edit.IsApplied || edit.ReviewStatus != models.ReviewStatusApproved || edit.DateEffective == nil {
			return nil
		}
		ref := edit.FieldRef()

		// When an edit lands after a later-ordered edit has already been
		// applied to the same field, the later value must keep winning in
		// the store, and this edit's recorded old value is reconstructed
		// from the ledger instead of the live read.
		latest, err := s.edits.LatestAppliedOnField(ctx, ext, ref)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		outOfOrder := latest != nil && edit.OrderedBefore(latest)

		var oldValue string
		if outOfOrder {
			prior, err := s.edits.AppliedOnFieldBefore(ctx, ext, edit)
			switch {
			case err == nil:
				oldValue = prior.NewValue
			case errors.Is(err, sql.ErrNoRows):
				oldValue = edit.OldValue
			default:
				return err
			}
		} else {
			current, err := s.records.ReadField(ctx, ext, ref)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrConsistency, "edit target row no longer exists")
				}
				return err
			}
			oldValue = current
			if err := s.records.WriteField(ctx, ext, ref, edit.NewValue); err != nil {
				return err
			}
		}
		if err := s.edits.MarkApplied(ctx, ext, edit.EditID, oldValue); err != nil {
			return err
		}
		didApply = true
		return nil
	})
	return didApply, err
}

// EditIsApplied reports whether the store currently reflects the edit's new
// value. Unlike the cached flag this consults the live field.
func (s *ApplyService) EditIsApplied(ctx context.Context, edit *models.Edit) (bool, error) {
	var applied bool
	err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		current, err := s.records.ReadField(ctx, ext, edit.FieldRef())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConsistency, "edit target row no longer exists")
			}
			return err
		}
		applied = edit.IsApplied && current == edit.NewValue
		return nil
	})
	return applied, err
}

// UpdateOldValue reconstructs the recorded pre-apply value of an applied
// edit from the ledger: the new value of the latest applied edit ordered
// before it on the same field, or the proposal-time old value when it is the
// earliest applied change.
func (s *ApplyService) UpdateOldValue(ctx context.Context, id int64) error {
	return s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		edit, err := s.edits.GetByIDTx(ctx, ext, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return err
		}
		if !edit.IsApplied {
			return nil
		}
		prior, err := s.edits.AppliedOnFieldBefore(ctx, ext, edit)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if prior.NewValue == edit.OldValue {
			return nil
		}
		return s.edits.MarkApplied(ctx, ext, edit.EditID, prior.NewValue)
	})
}
