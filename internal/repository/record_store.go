package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

// ConfirmedColumn is the soft add/delete flag carried by every relation
// table. NULL means proposed, true confirmed, false removed.
const ConfirmedColumn = "confirmed"

type columnKind int

const (
	kindText columnKind = iota
	kindBool
	kindEnum
)

type columnInfo struct {
	kind      columnKind
	enumTable string
}

type tableInfo struct {
	pk           string
	hasConfirmed bool
	columns      map[string]columnInfo
}

// sourceTables registers every table the ledger may touch. Identifiers used
// in generated SQL always come from this registry, never from client input.
var sourceTables = map[string]tableInfo{
	"ahjs": {
		pk: "ahj_pk",
		columns: map[string]columnInfo{
			"ahj_id":           {kind: kindText},
			"ahj_name":         {kind: kindText},
			"ahj_code":         {kind: kindText},
			"ahj_level_code":   {kind: kindEnum, enumTable: "ahj_level_codes"},
			"state_province":   {kind: kindText},
			"description":      {kind: kindText},
			"url":              {kind: kindText},
			"building_code":    {kind: kindEnum, enumTable: "building_codes"},
			"electric_code":    {kind: kindEnum, enumTable: "electric_codes"},
			"fire_code":        {kind: kindEnum, enumTable: "fire_codes"},
			"residential_code": {kind: kindEnum, enumTable: "residential_codes"},
			"wind_code":        {kind: kindEnum, enumTable: "wind_codes"},
		},
	},
	"contacts": {
		pk:           "contact_id",
		hasConfirmed: true,
		columns: map[string]columnInfo{
			"ahj_pk":     {kind: kindText},
			"first_name": {kind: kindText},
			"last_name":  {kind: kindText},
			"title":      {kind: kindText},
			"work_phone": {kind: kindText},
			"email":      {kind: kindText},
		},
	},
	"ahj_inspections": {
		pk:           "inspection_id",
		hasConfirmed: true,
		columns: map[string]columnInfo{
			"ahj_pk":              {kind: kindText},
			"inspection_name":     {kind: kindText},
			"inspection_type":     {kind: kindText},
			"technician_required": {kind: kindBool},
			"file_folder_url":     {kind: kindText},
		},
	},
	"engineering_review_requirements": {
		pk:           "requirement_id",
		hasConfirmed: true,
		columns: map[string]columnInfo{
			"ahj_pk":            {kind: kindText},
			"engineering_type":  {kind: kindText},
			"requirement_level": {kind: kindEnum, enumTable: "requirement_levels"},
			"requirement_notes": {kind: kindText},
		},
	},
	"fee_structures": {
		pk:           "fee_structure_id",
		hasConfirmed: true,
		columns: map[string]columnInfo{
			"ahj_pk":             {kind: kindText},
			"fee_structure_name": {kind: kindText},
			"fee_structure_type": {kind: kindText},
			"description":        {kind: kindText},
		},
	},
}

// RecordStore reads and writes individual fields of the registered tables.
// Every method accepts an sqlx.ExtContext so callers can compose field access
// with ledger updates in one transaction.
type RecordStore struct {
	enums *EnumResolver
}

// NewRecordStore constructs the store.
func NewRecordStore() *RecordStore {
	return &RecordStore{enums: NewEnumResolver()}
}

// SupportsConfirmed reports whether the table carries the soft add/delete
// flag, i.e. whether addition and deletion edits may target it.
func (s *RecordStore) SupportsConfirmed(table string) bool {
	info, ok := sourceTables[table]
	return ok && info.hasConfirmed
}

// ValidateField checks the reference against the registry.
func (s *RecordStore) ValidateField(ref models.FieldRef) error {
	_, _, err := fieldInfo(ref)
	return err
}

func fieldInfo(ref models.FieldRef) (tableInfo, columnInfo, error) {
	table, ok := sourceTables[ref.Table]
	if !ok {
		return tableInfo{}, columnInfo{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown table %q", ref.Table))
	}
	if ref.Column == ConfirmedColumn {
		if !table.hasConfirmed {
			return tableInfo{}, columnInfo{}, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("table %q has no confirmation flag", ref.Table))
		}
		return table, columnInfo{kind: kindBool}, nil
	}
	column, ok := table.columns[ref.Column]
	if !ok {
		return tableInfo{}, columnInfo{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unknown column %q on table %q", ref.Column, ref.Table))
	}
	return table, column, nil
}

// ReadField returns the current value of a field in display form. Booleans
// read as "True"/"False", NULLs as the empty string, and enum references as
// their display value. Returns sql.ErrNoRows when the row does not exist.
func (s *RecordStore) ReadField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef) (string, error) {
	table, column, err := fieldInfo(ref)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", ref.Column, ref.Table, table.pk)
	switch column.kind {
	case kindBool:
		var v sql.NullBool
		if err := sqlx.GetContext(ctx, ext, &v, query, ref.Row); err != nil {
			return "", err
		}
		return formatBool(v), nil
	case kindEnum:
		var v sql.NullString
		if err := sqlx.GetContext(ctx, ext, &v, query, ref.Row); err != nil {
			return "", err
		}
		if !v.Valid || v.String == "" {
			return "", nil
		}
		return s.enums.ToDisplay(ctx, ext, column.enumTable, v.String)
	default:
		var v sql.NullString
		if err := sqlx.GetContext(ctx, ext, &v, query, ref.Row); err != nil {
			return "", err
		}
		return v.String, nil
	}
}

// WriteField stores a display-form value into a field, resolving enum display
// values to lookup references. Returns sql.ErrNoRows when the row is missing.
func (s *RecordStore) WriteField(ctx context.Context, ext sqlx.ExtContext, ref models.FieldRef, value string) error {
	table, column, err := fieldInfo(ref)
	if err != nil {
		return err
	}
	stored, err := s.storedValue(ctx, ext, column, value)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", ref.Table, ref.Column, table.pk)
	result, err := ext.ExecContext(ctx, query, stored, ref.Row)
	if err != nil {
		return fmt.Errorf("write %s.%s: %w", ref.Table, ref.Column, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check write rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateRow inserts a row with the given display-form column values and a
// generated primary key. Tables with a confirmation flag start unconfirmed
// (flag NULL). Returns the new row id.
func (s *RecordStore) CreateRow(ctx context.Context, ext sqlx.ExtContext, tableName string, values map[string]string) (string, error) {
	table, ok := sourceTables[tableName]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown table %q", tableName))
	}
	id := uuid.NewString()
	columns := []string{table.pk}
	args := []interface{}{id}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		column, ok := table.columns[name]
		if !ok {
			return "", appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("unknown column %q on table %q", name, tableName))
		}
		stored, err := s.storedValue(ctx, ext, column, values[name])
		if err != nil {
			return "", err
		}
		columns = append(columns, name)
		args = append(args, stored)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := ext.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("create %s row: %w", tableName, err)
	}
	return id, nil
}

func (s *RecordStore) storedValue(ctx context.Context, ext sqlx.ExtContext, column columnInfo, value string) (interface{}, error) {
	switch column.kind {
	case kindBool:
		return parseBool(value)
	case kindEnum:
		if value == "" {
			return sql.NullString{}, nil
		}
		id, err := s.enums.ToStored(ctx, ext, column.enumTable, value)
		if err != nil {
			return nil, err
		}
		return id, nil
	default:
		return value, nil
	}
}

func formatBool(v sql.NullBool) string {
	if !v.Valid {
		return ""
	}
	if v.Bool {
		return "True"
	}
	return "False"
}

func parseBool(value string) (sql.NullBool, error) {
	switch value {
	case "":
		return sql.NullBool{}, nil
	case "True":
		return sql.NullBool{Valid: true, Bool: true}, nil
	case "False":
		return sql.NullBool{Valid: true, Bool: false}, nil
	default:
		return sql.NullBool{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("invalid boolean value %q", value))
	}
}
