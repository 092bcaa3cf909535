package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

// EnumResolver translates between the display values exposed by the API and
// the lookup-table references stored in enum columns.
type EnumResolver struct{}

// NewEnumResolver constructs the resolver.
func NewEnumResolver() *EnumResolver {
	return &EnumResolver{}
}

// ToStored resolves a display value to its lookup-row id. Unknown display
// values are a client error.
func (r *EnumResolver) ToStored(ctx context.Context, ext sqlx.ExtContext, enumTable, display string) (string, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE value = $1", enumTable)
	var id string
	if err := sqlx.GetContext(ctx, ext, &id, query, display); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("unknown %s value %q", enumTable, display))
		}
		return "", fmt.Errorf("resolve %s value: %w", enumTable, err)
	}
	return id, nil
}

// ToDisplay resolves a stored lookup-row id back to its display value. A
// dangling reference means the store diverged from the lookup tables.
func (r *EnumResolver) ToDisplay(ctx context.Context, ext sqlx.ExtContext, enumTable, id string) (string, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE id = $1", enumTable)
	var display string
	if err := sqlx.GetContext(ctx, ext, &display, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrConsistency,
				fmt.Sprintf("dangling %s reference %q", enumTable, id))
		}
		return "", fmt.Errorf("resolve %s id: %w", enumTable, err)
	}
	return display, nil
}
