package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

type ledgerStub struct {
	nextID int64
	edits  map[int64]*models.Edit
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{edits: make(map[int64]*models.Edit)}
}

func (l *ledgerStub) add(edit models.Edit) *models.Edit {
	if edit.EditID == 0 {
		l.nextID++
		edit.EditID = l.nextID
	} else if edit.EditID > l.nextID {
		l.nextID = edit.EditID
	}
	stored := edit
	l.edits[stored.EditID] = &stored
	return &stored
}

func (l *ledgerStub) Create(ctx context.Context, edit *models.Edit) error {
	l.nextID++
	edit.EditID = l.nextID
	stored := *edit
	l.edits[stored.EditID] = &stored
	return nil
}

func (l *ledgerStub) CreateTx(ctx context.Context, ext sqlx.ExtContext, edit *models.Edit) error {
	return l.Create(ctx, edit)
}

func (l *ledgerStub) GetByID(ctx context.Context, id int64) (*models.Edit, error) {
	edit, ok := l.edits[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *edit
	return &copied, nil
}

func (l *ledgerStub) GetByIDTx(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.Edit, error) {
	return l.GetByID(ctx, id)
}

func (l *ledgerStub) List(ctx context.Context, filter models.EditFilter) ([]models.Edit, error) {
	result := make([]models.Edit, 0, len(l.edits))
	for _, edit := range l.edits {
		if filter.AHJPK != "" && edit.AHJPK != filter.AHJPK {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, status := range filter.Status {
				if edit.ReviewStatus == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		result = append(result, *edit)
	}
	return result, nil
}

func (l *ledgerStub) ListDue(ctx context.Context, now time.Time) ([]models.Edit, error) {
	var due []models.Edit
	for _, edit := range l.edits {
		if edit.ReviewStatus != models.ReviewStatusApproved || edit.IsApplied {
			continue
		}
		if edit.DateEffective == nil || edit.DateEffective.After(now) {
			continue
		}
		due = append(due, *edit)
	}
	return due, nil
}

func (l *ledgerStub) SetReview(ctx context.Context, id int64, status models.ReviewStatus, approvedBy string, dateEffective *time.Time) error {
	edit, ok := l.edits[id]
	if !ok || edit.ReviewStatus != models.ReviewStatusPending {
		return sql.ErrNoRows
	}
	edit.ReviewStatus = status
	edit.ApprovedBy = &approvedBy
	edit.DateEffective = dateEffective
	return nil
}

func (l *ledgerStub) MarkApplied(ctx context.Context, ext sqlx.ExtContext, id int64, oldValue string) error {
	edit, ok := l.edits[id]
	if !ok {
		return sql.ErrNoRows
	}
	edit.IsApplied = true
	edit.OldValue = oldValue
	return nil
}

func (l *ledgerStub) SetApplied(ctx context.Context, ext sqlx.ExtContext, id int64, applied bool) error {
	edit, ok := l.edits[id]
	if !ok {
		return sql.ErrNoRows
	}
	edit.IsApplied = applied
	return nil
}

func (l *ledgerStub) MakePending(ctx context.Context, ext sqlx.ExtContext, id int64) error {
	edit, ok := l.edits[id]
	if !ok {
		return sql.ErrNoRows
	}
	edit.ReviewStatus = models.ReviewStatusPending
	edit.ApprovedBy = nil
	edit.DateEffective = nil
	edit.IsApplied = false
	return nil
}

func (l *ledgerStub) LatestAppliedOnField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef) (*models.Edit, error) {
	var latest *models.Edit
	for _, edit := range l.edits {
		if !edit.IsApplied || edit.FieldRef() != ref {
			continue
		}
		if latest == nil || latest.OrderedBefore(edit) {
			latest = edit
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

func (l *ledgerStub) AppliedOnFieldBefore(ctx context.Context, ext sqlx.ExtContext, target *models.Edit) (*models.Edit, error) {
	if target.DateEffective == nil {
		return nil, sql.ErrNoRows
	}
	var prior *models.Edit
	for _, edit := range l.edits {
		if !edit.IsApplied || edit.EditID == target.EditID || edit.FieldRef() != target.FieldRef() {
			continue
		}
		if !edit.OrderedBefore(target) {
			continue
		}
		if prior == nil || prior.OrderedBefore(edit) {
			prior = edit
		}
	}
	if prior == nil {
		return nil, sql.ErrNoRows
	}
	copied := *prior
	return &copied, nil
}

type fieldStoreStub struct {
	fields    map[models.FieldRef]string
	confirmed map[string]bool
	created   []map[string]string
	nextRow   int
}

func newFieldStoreStub() *fieldStoreStub {
	return &fieldStoreStub{
		fields:    make(map[models.FieldRef]string),
		confirmed: map[string]bool{"contacts": true, "ahj_inspections": true, "fee_structures": true},
	}
}

func (f *fieldStoreStub) ValidateField(ref models.FieldRef) error {
	return nil
}

func (f *fieldStoreStub) SupportsConfirmed(table string) bool {
	return f.confirmed[table]
}

func (f *fieldStoreStub) ReadField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef) (string, error) {
	value, ok := f.fields[ref]
	if !ok {
		return "", sql.ErrNoRows
	}
	return value, nil
}

func (f *fieldStoreStub) WriteField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef, value string) error {
	if _, ok := f.fields[ref]; !ok {
		return sql.ErrNoRows
	}
	f.fields[ref] = value
	return nil
}

func (f *fieldStoreStub) CreateRow(ctx context.Context, ext sqlx.ExtContext, table string, values map[string]string) (string, error) {
	f.nextRow++
	rowID := fmt.Sprintf("row-%d", f.nextRow)
	f.created = append(f.created, values)
	f.fields[models.FieldRef{Table: table, Row: rowID, Column: "confirmed"}] = ""
	return rowID, nil
}

type txStub struct{}

func (txStub) RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error {
	return fn(nil)
}

type maintainerStub struct {
	grants map[string]bool
}

func (m *maintainerStub) IsMaintainer(ctx context.Context, userID, ahjPK string) (bool, error) {
	return m.grants[userID+"|"+ahjPK], nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func memberClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func newEditServiceForTest(ledger *ledgerStub, fields *fieldStoreStub, maintainers *maintainerStub, audit *auditStub) *EditService {
	if maintainers == nil {
		maintainers = &maintainerStub{grants: map[string]bool{}}
	}
	if audit == nil {
		audit = &auditStub{}
	}
	return NewEditService(ledger, fields, maintainers, txStub{}, audit, nil, 24*time.Hour)
}

func TestEditServiceSubmitUpdatesCapturesOldValue(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	audit := &auditStub{}
	fields.fields[models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}] = "Springfield"
	svc := newEditServiceForTest(ledger, fields, nil, audit)

	created, err := svc.SubmitUpdates(context.Background(), []dto.UpdateEditItem{{
		AHJPK:        "ahj-1",
		SourceTable:  "ahjs",
		SourceRow:    "ahj-1",
		SourceColumn: "ahj_name",
		NewValue:     "Springfield Township",
	}}, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, "Springfield", created[0].OldValue)
	assert.Equal(t, "Springfield Township", created[0].NewValue)
	assert.Equal(t, models.EditTypeUpdate, created[0].EditType)
	assert.Equal(t, models.ReviewStatusPending, created[0].ReviewStatus)
	assert.False(t, created[0].IsApplied)
	assert.NotZero(t, created[0].EditID)
	assert.Len(t, audit.logs, 1)

	// The ledger row is recorded, but the live field is untouched until the
	// edit is approved and applied.
	assert.Equal(t, "Springfield", fields.fields[models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"}])
}

func TestEditServiceSubmitUpdatesMissingRow(t *testing.T) {
	svc := newEditServiceForTest(newLedgerStub(), newFieldStoreStub(), nil, nil)

	_, err := svc.SubmitUpdates(context.Background(), []dto.UpdateEditItem{{
		AHJPK:        "ahj-1",
		SourceTable:  "ahjs",
		SourceRow:    "missing",
		SourceColumn: "ahj_name",
		NewValue:     "x",
	}}, "user-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestEditServiceSubmitUpdatesRequiresItems(t *testing.T) {
	svc := newEditServiceForTest(newLedgerStub(), newFieldStoreStub(), nil, nil)

	_, err := svc.SubmitUpdates(context.Background(), nil, "user-1")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestEditServiceSubmitAdditionCreatesUnconfirmedRow(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	svc := newEditServiceForTest(ledger, fields, nil, nil)

	created, err := svc.SubmitAddition(context.Background(), dto.CreateAdditionRequest{
		SourceTable: "contacts",
		AHJPK:       "ahj-1",
		Value:       []map[string]string{{"first_name": "Jo", "last_name": "Nakamura"}},
	}, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, models.EditTypeAddition, created[0].EditType)
	assert.Equal(t, "confirmed", created[0].SourceColumn)
	assert.Equal(t, "", created[0].OldValue)
	assert.Equal(t, "True", created[0].NewValue)
	assert.Equal(t, "row-1", created[0].SourceRow)

	require.Len(t, fields.created, 1)
	assert.Equal(t, "ahj-1", fields.created[0]["ahj_pk"])
	// New rows start with the confirmation flag unset.
	assert.Equal(t, "", fields.fields[models.FieldRef{Table: "contacts", Row: "row-1", Column: "confirmed"}])
}

func TestEditServiceSubmitAdditionRejectsTopLevelTable(t *testing.T) {
	svc := newEditServiceForTest(newLedgerStub(), newFieldStoreStub(), nil, nil)

	_, err := svc.SubmitAddition(context.Background(), dto.CreateAdditionRequest{
		SourceTable: "ahjs",
		AHJPK:       "ahj-1",
		Value:       []map[string]string{{"ahj_name": "x"}},
	}, "user-1")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestEditServiceSubmitDeletionCapturesCurrentFlag(t *testing.T) {
	ledger := newLedgerStub()
	fields := newFieldStoreStub()
	fields.fields[models.FieldRef{Table: "contacts", Row: "c1", Column: "confirmed"}] = "True"
	svc := newEditServiceForTest(ledger, fields, nil, nil)

	created, err := svc.SubmitDeletion(context.Background(), dto.CreateDeletionRequest{
		SourceTable: "contacts",
		AHJPK:       "ahj-1",
		Value:       []string{"c1"},
	}, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, models.EditTypeDeletion, created[0].EditType)
	assert.Equal(t, "True", created[0].OldValue)
	assert.Equal(t, "False", created[0].NewValue)
	// Deletion is soft and deferred: the row stays confirmed until applied.
	assert.Equal(t, "True", fields.fields[models.FieldRef{Table: "contacts", Row: "c1", Column: "confirmed"}])
}

func TestEditServiceReviewApproveStampsEffectiveDate(t *testing.T) {
	ledger := newLedgerStub()
	edit := ledger.add(models.Edit{
		ChangedBy:    "user-1",
		SourceTable:  "ahjs",
		SourceRow:    "ahj-1",
		SourceColumn: "ahj_name",
		NewValue:     "New Name",
		EditType:     models.EditTypeUpdate,
		ReviewStatus: models.ReviewStatusPending,
		AHJPK:        "ahj-1",
	})
	svc := newEditServiceForTest(ledger, newFieldStoreStub(), nil, nil)
	decidedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return decidedAt }

	reviewed, err := svc.Review(context.Background(), dto.ReviewEditRequest{
		EditID: edit.EditID,
		Status: models.ReviewStatusApproved,
	}, adminClaims())
	require.NoError(t, err)

	require.NotNil(t, reviewed.DateEffective)
	assert.Equal(t, decidedAt.Add(24*time.Hour), *reviewed.DateEffective)
	assert.Equal(t, models.ReviewStatusApproved, reviewed.ReviewStatus)
	require.NotNil(t, reviewed.ApprovedBy)
	assert.Equal(t, "admin-1", *reviewed.ApprovedBy)

	stored, err := ledger.GetByID(context.Background(), edit.EditID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, stored.ReviewStatus)
}

func TestEditServiceReviewRejectLeavesNoEffectiveDate(t *testing.T) {
	ledger := newLedgerStub()
	edit := ledger.add(models.Edit{ReviewStatus: models.ReviewStatusPending, AHJPK: "ahj-1"})
	svc := newEditServiceForTest(ledger, newFieldStoreStub(), nil, nil)

	reviewed, err := svc.Review(context.Background(), dto.ReviewEditRequest{
		EditID: edit.EditID,
		Status: models.ReviewStatusRejected,
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusRejected, reviewed.ReviewStatus)
	assert.Nil(t, reviewed.DateEffective)
}

func TestEditServiceReviewRequiresModerator(t *testing.T) {
	ledger := newLedgerStub()
	edit := ledger.add(models.Edit{ReviewStatus: models.ReviewStatusPending, AHJPK: "ahj-1"})
	svc := newEditServiceForTest(ledger, newFieldStoreStub(), &maintainerStub{grants: map[string]bool{}}, nil)

	_, err := svc.Review(context.Background(), dto.ReviewEditRequest{
		EditID: edit.EditID,
		Status: models.ReviewStatusApproved,
	}, memberClaims())
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestEditServiceReviewAllowsActiveMaintainer(t *testing.T) {
	ledger := newLedgerStub()
	edit := ledger.add(models.Edit{ReviewStatus: models.ReviewStatusPending, AHJPK: "ahj-1"})
	maintainers := &maintainerStub{grants: map[string]bool{"member-1|ahj-1": true}}
	svc := newEditServiceForTest(ledger, newFieldStoreStub(), maintainers, nil)

	_, err := svc.Review(context.Background(), dto.ReviewEditRequest{
		EditID: edit.EditID,
		Status: models.ReviewStatusApproved,
	}, memberClaims())
	require.NoError(t, err)
}

func TestEditServiceReviewUnknownEdit(t *testing.T) {
	svc := newEditServiceForTest(newLedgerStub(), newFieldStoreStub(), nil, nil)

	_, err := svc.Review(context.Background(), dto.ReviewEditRequest{
		EditID: 404,
		Status: models.ReviewStatusApproved,
	}, adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestEditServiceReviewAlreadyReviewed(t *testing.T) {
	ledger := newLedgerStub()
	edit := ledger.add(models.Edit{ReviewStatus: models.ReviewStatusRejected, AHJPK: "ahj-1"})
	svc := newEditServiceForTest(ledger, newFieldStoreStub(), nil, nil)

	_, err := svc.Review(context.Background(), dto.ReviewEditRequest{
		EditID: edit.EditID,
		Status: models.ReviewStatusApproved,
	}, adminClaims())
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestEditServiceReviewRejectsPendingStatus(t *testing.T) {
	ledger := newLedgerStub()
	edit := ledger.add(models.Edit{ReviewStatus: models.ReviewStatusPending, AHJPK: "ahj-1"})
	svc := newEditServiceForTest(ledger, newFieldStoreStub(), nil, nil)

	_, err := svc.Review(context.Background(), dto.ReviewEditRequest{
		EditID: edit.EditID,
		Status: models.ReviewStatusPending,
	}, adminClaims())
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}
