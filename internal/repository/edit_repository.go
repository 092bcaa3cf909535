package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openpermit/ahj-registry-api/internal/models"
)

const editColumns = `edit_id, changed_by, approved_by, source_table, source_row, source_column,
       old_value, new_value, edit_type, review_status, date_requested, date_effective, is_applied, ahj_pk`

// EditRepository persists the edit ledger.
type EditRepository struct {
	db *sqlx.DB
}

// NewEditRepository constructs the repository.
func NewEditRepository(db *sqlx.DB) *EditRepository {
	return &EditRepository{db: db}
}

// Create inserts a new ledger row and fills in the generated EditID.
func (r *EditRepository) Create(ctx context.Context, edit *models.Edit) error {
	return r.create(ctx, r.db, edit)
}

// CreateTx inserts a ledger row inside an existing transaction.
func (r *EditRepository) CreateTx(ctx context.Context, ext sqlx.ExtContext, edit *models.Edit) error {
	return r.create(ctx, ext, edit)
}

func (r *EditRepository) create(ctx context.Context, ext sqlx.ExtContext, edit *models.Edit) error {
	if edit.DateRequested.IsZero() {
		edit.DateRequested = time.Now().UTC()
	}
	if edit.ReviewStatus == "" {
		edit.ReviewStatus = models.ReviewStatusPending
	}
	const query = `INSERT INTO edits
	(changed_by, approved_by, source_table, source_row, source_column, old_value, new_value, edit_type, review_status, date_requested, date_effective, is_applied, ahj_pk)
	VALUES (:changed_by, :approved_by, :source_table, :source_row, :source_column, :old_value, :new_value, :edit_type, :review_status, :date_requested, :date_effective, :is_applied, :ahj_pk)
	RETURNING edit_id`
	rows, err := sqlx.NamedQueryContext(ctx, ext, query, edit)
	if err != nil {
		return fmt.Errorf("create edit: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return fmt.Errorf("create edit: no id returned")
	}
	if err := rows.Scan(&edit.EditID); err != nil {
		return fmt.Errorf("create edit: scan id: %w", err)
	}
	return rows.Err()
}

// GetByID fetches an edit by ledger identifier.
func (r *EditRepository) GetByID(ctx context.Context, id int64) (*models.Edit, error) {
	return r.getByID(ctx, r.db, id)
}

// GetByIDTx fetches an edit inside an existing transaction.
func (r *EditRepository) GetByIDTx(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.Edit, error) {
	return r.getByID(ctx, ext, id)
}

func (r *EditRepository) getByID(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Edit, error) {
	query := `SELECT ` + editColumns + ` FROM edits WHERE edit_id = $1`
	var edit models.Edit
	if err := sqlx.GetContext(ctx, q, &edit, query, id); err != nil {
		return nil, err
	}
	return &edit, nil
}

// List returns ledger rows matching the filter (newest requests first).
func (r *EditRepository) List(ctx context.Context, filter models.EditFilter) ([]models.Edit, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + editColumns + ` FROM edits`)

	conditions := make([]string, 0, 4)
	if filter.AHJPK != "" {
		args = append(args, filter.AHJPK)
		conditions = append(conditions, fmt.Sprintf("ahj_pk = $%d", len(args)))
	}
	if filter.ChangedBy != "" {
		args = append(args, filter.ChangedBy)
		conditions = append(conditions, fmt.Sprintf("changed_by = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("review_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.EditType != "" {
		args = append(args, filter.EditType)
		conditions = append(conditions, fmt.Sprintf("edit_type = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY date_requested DESC, edit_id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var edits []models.Edit
	if err := r.db.SelectContext(ctx, &edits, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	return edits, nil
}

// ListDue returns approved, unapplied edits whose effective date has passed,
// in canonical apply order.
func (r *EditRepository) ListDue(ctx context.Context, now time.Time) ([]models.Edit, error) {
	query := `SELECT ` + editColumns + ` FROM edits
	WHERE review_status = $1 AND is_applied = FALSE AND date_effective IS NOT NULL AND date_effective <= $2
	ORDER BY date_effective ASC, edit_id ASC`
	var edits []models.Edit
	if err := r.db.SelectContext(ctx, &edits, query, models.ReviewStatusApproved, now); err != nil {
		return nil, fmt.Errorf("list due edits: %w", err)
	}
	return edits, nil
}

// SetReview records a reviewer decision on a pending edit. Returns
// sql.ErrNoRows when the edit is missing or no longer pending.
func (r *EditRepository) SetReview(ctx context.Context, id int64, status models.ReviewStatus, approvedBy string, dateEffective *time.Time) error {
	const query = `UPDATE edits
	SET review_status = :status, approved_by = :approved_by, date_effective = :date_effective
	WHERE edit_id = :id AND review_status = :pending`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":             id,
		"status":         status,
		"approved_by":    approvedBy,
		"date_effective": dateEffective,
		"pending":        models.ReviewStatusPending,
	})
	if err != nil {
		return fmt.Errorf("review edit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check review rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkApplied flags an edit as applied and persists the value read from the
// record store immediately before the write.
func (r *EditRepository) MarkApplied(ctx context.Context, ext sqlx.ExtContext, id int64, oldValue string) error {
	result, err := ext.ExecContext(ctx, `UPDATE edits SET is_applied = TRUE, old_value = $1 WHERE edit_id = $2`, oldValue, id)
	if err != nil {
		return fmt.Errorf("mark edit applied: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check mark applied rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetApplied toggles only the applied flag.
func (r *EditRepository) SetApplied(ctx context.Context, ext sqlx.ExtContext, id int64, applied bool) error {
	result, err := ext.ExecContext(ctx, `UPDATE edits SET is_applied = $1 WHERE edit_id = $2`, applied, id)
	if err != nil {
		return fmt.Errorf("set edit applied: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check set applied rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MakePending returns an edit to the pending state, clearing any review
// outcome and the applied flag.
func (r *EditRepository) MakePending(ctx context.Context, ext sqlx.ExtContext, id int64) error {
	const query = `UPDATE edits
	SET review_status = $1, approved_by = NULL, date_effective = NULL, is_applied = FALSE
	WHERE edit_id = $2`
	result, err := ext.ExecContext(ctx, query, models.ReviewStatusPending, id)
	if err != nil {
		return fmt.Errorf("make edit pending: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check make pending rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LatestAppliedOnField returns the most recently applied edit targeting the
// field, by effective date then ledger id. Returns sql.ErrNoRows when the
// field has no applied history.
func (r *EditRepository) LatestAppliedOnField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef) (*models.Edit, error) {
	query := `SELECT ` + editColumns + ` FROM edits
	WHERE source_table = $1 AND source_row = $2 AND source_column = $3 AND is_applied = TRUE
	ORDER BY date_effective DESC, edit_id DESC LIMIT 1`
	var edit models.Edit
	if err := sqlx.GetContext(ctx, ext, &edit, query, ref.Table, ref.Row, ref.Column); err != nil {
		return nil, err
	}
	return &edit, nil
}

// AppliedOnFieldBefore returns the latest applied edit on the same field that
// is ordered strictly before the given edit. Returns sql.ErrNoRows when the
// given edit is the earliest applied change to its field.
func (r *EditRepository) AppliedOnFieldBefore(ctx context.Context, ext sqlx.ExtContext, edit *models.Edit) (*models.Edit, error) {
	if edit.DateEffective == nil {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + editColumns + ` FROM edits
	WHERE source_table = $1 AND source_row = $2 AND source_column = $3 AND is_applied = TRUE
	  AND edit_id <> $4
	  AND (date_effective < $5 OR (date_effective = $5 AND edit_id < $4))
	ORDER BY date_effective DESC, edit_id DESC LIMIT 1`
	var prior models.Edit
	err := sqlx.GetContext(ctx, ext, &prior, query, edit.SourceTable, edit.SourceRow, edit.SourceColumn, edit.EditID, edit.DateEffective)
	if err != nil {
		return nil, err
	}
	return &prior, nil
}

// ListLatestByAHJ returns the most recent ledger activity for an AHJ, capped
// for the public view endpoint.
func (r *EditRepository) ListLatestByAHJ(ctx context.Context, ahjPK string, limit int) ([]models.Edit, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + editColumns + ` FROM edits
	WHERE ahj_pk = $1 ORDER BY date_requested DESC, edit_id DESC LIMIT $2`
	var edits []models.Edit
	if err := r.db.SelectContext(ctx, &edits, query, ahjPK, limit); err != nil {
		return nil, fmt.Errorf("list latest edits: %w", err)
	}
	return edits, nil
}
