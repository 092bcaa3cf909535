package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpermit/ahj-registry-api/internal/models"
)

func newEditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func editRows(edits ...models.Edit) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"edit_id", "changed_by", "approved_by", "source_table", "source_row", "source_column",
		"old_value", "new_value", "edit_type", "review_status", "date_requested", "date_effective", "is_applied", "ahj_pk",
	})
	for _, e := range edits {
		rows.AddRow(e.EditID, e.ChangedBy, e.ApprovedBy, e.SourceTable, e.SourceRow, e.SourceColumn,
			e.OldValue, e.NewValue, e.EditType, e.ReviewStatus, e.DateRequested, e.DateEffective, e.IsApplied, e.AHJPK)
	}
	return rows
}

func TestEditRepositoryCreateReturnsID(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectQuery("INSERT INTO edits").
		WillReturnRows(sqlmock.NewRows([]string{"edit_id"}).AddRow(int64(42)))

	edit := &models.Edit{
		ChangedBy:    "user-1",
		SourceTable:  "ahjs",
		SourceRow:    "ahj-1",
		SourceColumn: "ahj_name",
		NewValue:     "New Name",
		EditType:     models.EditTypeUpdate,
		AHJPK:        "ahj-1",
	}
	require.NoError(t, repo.Create(context.Background(), edit))
	assert.Equal(t, int64(42), edit.EditID)
	assert.Equal(t, models.ReviewStatusPending, edit.ReviewStatus)
	assert.False(t, edit.DateRequested.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectQuery(`FROM edits WHERE edit_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(editRows(models.Edit{
			EditID:        5,
			ChangedBy:     "user-1",
			SourceTable:   "ahjs",
			SourceRow:     "ahj-1",
			SourceColumn:  "ahj_name",
			EditType:      models.EditTypeUpdate,
			ReviewStatus:  models.ReviewStatusPending,
			DateRequested: time.Now(),
			AHJPK:         "ahj-1",
		}))

	edit, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), edit.EditID)
	assert.Equal(t, "ahjs", edit.SourceTable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectQuery(`FROM edits WHERE edit_id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectQuery(`FROM edits WHERE ahj_pk = \$1 AND review_status IN \(\$2,\$3\) ORDER BY date_requested DESC, edit_id DESC LIMIT 50 OFFSET 0`).
		WithArgs("ahj-1", models.ReviewStatusPending, models.ReviewStatusApproved).
		WillReturnRows(editRows())

	_, err := repo.List(context.Background(), models.EditFilter{
		AHJPK:  "ahj-1",
		Status: []models.ReviewStatus{models.ReviewStatusPending, models.ReviewStatusApproved},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryListDueOrdering(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM edits\s+WHERE review_status = \$1 AND is_applied = FALSE AND date_effective IS NOT NULL AND date_effective <= \$2\s+ORDER BY date_effective ASC, edit_id ASC`).
		WithArgs(models.ReviewStatusApproved, now).
		WillReturnRows(editRows())

	_, err := repo.ListDue(context.Background(), now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositorySetReviewAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectExec("UPDATE edits").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	effective := time.Now()
	err := repo.SetReview(context.Background(), 1, models.ReviewStatusApproved, "admin-1", &effective)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryMarkApplied(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE edits SET is_applied = TRUE, old_value = $1 WHERE edit_id = $2")).
		WithArgs("Old Name", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkApplied(context.Background(), db, 7, "Old Name"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryMakePendingClearsReview(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectExec(`UPDATE edits\s+SET review_status = \$1, approved_by = NULL, date_effective = NULL, is_applied = FALSE\s+WHERE edit_id = \$2`).
		WithArgs(models.ReviewStatusPending, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MakePending(context.Background(), db, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryLatestAppliedOnField(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	effective := time.Now()
	mock.ExpectQuery(`FROM edits\s+WHERE source_table = \$1 AND source_row = \$2 AND source_column = \$3 AND is_applied = TRUE\s+ORDER BY date_effective DESC, edit_id DESC LIMIT 1`).
		WithArgs("ahjs", "ahj-1", "ahj_name").
		WillReturnRows(editRows(models.Edit{
			EditID:        11,
			SourceTable:   "ahjs",
			SourceRow:     "ahj-1",
			SourceColumn:  "ahj_name",
			ReviewStatus:  models.ReviewStatusApproved,
			DateRequested: effective,
			DateEffective: &effective,
			IsApplied:     true,
		}))

	latest, err := repo.LatestAppliedOnField(context.Background(), db, models.FieldRef{Table: "ahjs", Row: "ahj-1", Column: "ahj_name"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), latest.EditID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRepositoryAppliedOnFieldBeforeWithoutEffectiveDate(t *testing.T) {
	db, _, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	// An edit with no effective date has no position in apply order, so no
	// query is issued at all.
	_, err := repo.AppliedOnFieldBefore(context.Background(), db, &models.Edit{EditID: 1})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEditRepositoryListLatestByAHJ(t *testing.T) {
	db, mock, cleanup := newEditRepoMock(t)
	defer cleanup()
	repo := NewEditRepository(db)

	mock.ExpectQuery(`FROM edits\s+WHERE ahj_pk = \$1 ORDER BY date_requested DESC, edit_id DESC LIMIT \$2`).
		WithArgs("ahj-1", 10).
		WillReturnRows(editRows())

	_, err := repo.ListLatestByAHJ(context.Background(), "ahj-1", 10)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
