package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpermit/ahj-registry-api/internal/models"
)

type recorderStub struct {
	applied []models.EditType
}

func (r *recorderStub) RecordEditApplied(editType models.EditType) {
	r.applied = append(r.applied, editType)
}

func approvedEdit(id int64, ref models.FieldRef, oldValue, newValue string, effective time.Time) models.Edit {
	return models.Edit{
		EditID:        id,
		ChangedBy:     "user-1",
		SourceTable:   ref.Table,
		SourceRow:     ref.Row,
		SourceColumn:  ref.Column,
		OldValue:      oldValue,
		NewValue:      newValue,
		EditType:      models.EditTypeUpdate,
		ReviewStatus:  models.ReviewStatusApproved,
		DateRequested: effective.Add(-48 * time.Hour),
		DateEffective: &effective,
		AHJPK:         "ahj-1",
	}
}

func TestApplyServiceAppliesDueEdit(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	recorder := &recorderStub{}
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}
	fields.fields[ref] = "Old Name"
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	ledger.add(approvedEdit(1, ref, "Old Name", "New Name", now.Add(-time.Hour)))

	svc := NewApplyService(ledger, fields, txStub{}, nil, recorder)
	svc.now = func() time.Time { return now }

	applied, err := svc.ApplyDueEdits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, "New Name", fields.fields[ref])
	assert.Equal(t, []models.EditType{models.EditTypeUpdate}, recorder.applied)

	stored, err := ledger.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stored.IsApplied)
	assert.Equal(t, "Old Name", stored.OldValue)

	// Second sweep is a no-op.
	applied, err = svc.ApplyDueEdits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, "New Name", fields.fields[ref])
}

func TestApplyServiceSkipsFutureEdits(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "url"}
	fields.fields[ref] = "http://old"
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	ledger.add(approvedEdit(1, ref, "http://old", "http://new", now.Add(time.Hour)))

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)
	svc.now = func() time.Time { return now }

	applied, err := svc.ApplyDueEdits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, "http://old", fields.fields[ref])
}

func TestApplyServiceOrdersByEffectiveDate(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}
	fields.fields[ref] = "Original"
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	first := ledger.add(approvedEdit(1, ref, "Original", "First", base))
	second := ledger.add(approvedEdit(2, ref, "Original", "Second", base.Add(time.Hour)))

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)

	// Input order is deliberately reversed; canonical ordering must win.
	applied, err := svc.ApplyEdits(context.Background(), []models.Edit{*second, *first})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, "Second", fields.fields[ref])

	firstStored, err := ledger.GetByID(context.Background(), first.EditID)
	require.NoError(t, err)
	assert.Equal(t, "Original", firstStored.OldValue)

	secondStored, err := ledger.GetByID(context.Background(), second.EditID)
	require.NoError(t, err)
	assert.Equal(t, "First", secondStored.OldValue)
}

func TestApplyServiceTieBrokenByEditID(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "description"}
	fields.fields[ref] = ""
	effective := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	low := ledger.add(approvedEdit(3, ref, "", "low", effective))
	high := ledger.add(approvedEdit(7, ref, "", "high", effective))

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)

	applied, err := svc.ApplyEdits(context.Background(), []models.Edit{*high, *low})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	// Equal effective dates resolve by ledger id; the higher id wins.
	assert.Equal(t, "high", fields.fields[ref])
}

func TestApplyServiceOutOfOrderKeepsLaterValue(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// The later edit was already applied; the earlier one arrives afterwards.
	later := approvedEdit(2, ref, "Original", "Later", base.Add(time.Hour))
	later.IsApplied = true
	ledger.add(later)
	fields.fields[ref] = "Later"
	earlier := ledger.add(approvedEdit(1, ref, "Original", "Earlier", base))

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)

	applied, err := svc.ApplyEdits(context.Background(), []models.Edit{*earlier})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	// The store keeps the later edit's value.
	assert.Equal(t, "Later", fields.fields[ref])

	stored, err := ledger.GetByID(context.Background(), earlier.EditID)
	require.NoError(t, err)
	assert.True(t, stored.IsApplied)
	// No applied edit precedes it, so the proposal-time value stands.
	assert.Equal(t, "Original", stored.OldValue)
}

func TestApplyServiceOutOfOrderReconstructsOldValue(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := approvedEdit(1, ref, "Original", "First", base)
	first.IsApplied = true
	ledger.add(first)
	third := approvedEdit(3, ref, "Original", "Third", base.Add(2*time.Hour))
	third.IsApplied = true
	third.OldValue = "First"
	ledger.add(third)
	fields.fields[ref] = "Third"
	middle := ledger.add(approvedEdit(2, ref, "Original", "Middle", base.Add(time.Hour)))

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)

	applied, err := svc.ApplyEdits(context.Background(), []models.Edit{*middle})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, "Third", fields.fields[ref])

	stored, err := ledger.GetByID(context.Background(), middle.EditID)
	require.NoError(t, err)
	// Old value comes from the ledger: the new value of the latest applied
	// edit ordered before it.
	assert.Equal(t, "First", stored.OldValue)
}

func TestApplyServiceMissingRowFailsThatEditOnly(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	okRef := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}
	goneRef := models.FieldRef{Table: "contacts", Row: "gone", Column: "email"}
	fields.fields[okRef] = "Old"
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	broken := ledger.add(approvedEdit(1, goneRef, "", "x", base))
	good := ledger.add(approvedEdit(2, okRef, "Old", "New", base.Add(time.Minute)))

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)

	applied, err := svc.ApplyEdits(context.Background(), []models.Edit{*broken, *good})
	require.Error(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, "New", fields.fields[okRef])

	brokenStored, err := ledger.GetByID(context.Background(), broken.EditID)
	require.NoError(t, err)
	assert.False(t, brokenStored.IsApplied)
}

func TestApplyServiceEditIsAppliedConsultsStore(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}
	fields.fields[ref] = "Drifted"
	effective := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	edit := approvedEdit(1, ref, "Old", "New", effective)
	edit.IsApplied = true

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)

	applied, err := svc.EditIsApplied(context.Background(), &edit)
	require.NoError(t, err)
	// The flag says applied but the store no longer holds the new value.
	assert.False(t, applied)

	fields.fields[ref] = "New"
	applied, err = svc.EditIsApplied(context.Background(), &edit)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestApplyServiceUpdateOldValue(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	ref := models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := approvedEdit(1, ref, "Original", "First", base)
	first.IsApplied = true
	ledger.add(first)
	second := approvedEdit(2, ref, "Stale", "Second", base.Add(time.Hour))
	second.IsApplied = true
	ledger.add(second)

	svc := NewApplyService(ledger, fields, txStub{}, nil, nil)

	require.NoError(t, svc.UpdateOldValue(context.Background(), 2))
	stored, err := ledger.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "First", stored.OldValue)
}
