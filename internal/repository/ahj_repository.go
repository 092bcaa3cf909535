package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/openpermit/ahj-registry-api/internal/models"
)

// ahjSelect projects enum references back into display values.
const ahjSelect = `SELECT a.ahj_pk, a.ahj_id, a.ahj_name, a.ahj_code,
       COALESCE(lvl.value, '') AS ahj_level_code,
       a.state_province, a.description, a.url,
       COALESCE(bc.value, '') AS building_code,
       COALESCE(ec.value, '') AS electric_code,
       COALESCE(fc.value, '') AS fire_code,
       COALESCE(rc.value, '') AS residential_code,
       COALESCE(wc.value, '') AS wind_code`

const ahjJoins = ` FROM ahjs a
	LEFT JOIN ahj_level_codes lvl ON lvl.id = a.ahj_level_code
	LEFT JOIN building_codes bc ON bc.id = a.building_code
	LEFT JOIN electric_codes ec ON ec.id = a.electric_code
	LEFT JOIN fire_codes fc ON fc.id = a.fire_code
	LEFT JOIN residential_codes rc ON rc.id = a.residential_code
	LEFT JOIN wind_codes wc ON wc.id = a.wind_code`

// AHJRepository provides read access to the authority registry.
type AHJRepository struct {
	db *sqlx.DB
}

// NewAHJRepository creates a new instance of AHJRepository.
func NewAHJRepository(db *sqlx.DB) *AHJRepository {
	return &AHJRepository{db: db}
}

// Search returns authorities matching the filter with total count, ordered
// by name for stable paging.
func (r *AHJRepository) Search(ctx context.Context, filter models.AHJFilter) ([]models.AHJ, int, error) {
	baseQuery := ahjJoins + ` WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AHJName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(a.ahj_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.AHJName)+"%")
	}
	if filter.AHJPK != "" {
		conditions = append(conditions, fmt.Sprintf("a.ahj_pk = $%d", len(args)+1))
		args = append(args, filter.AHJPK)
	}
	if filter.AHJID != "" {
		conditions = append(conditions, fmt.Sprintf("a.ahj_id = $%d", len(args)+1))
		args = append(args, filter.AHJID)
	}
	if filter.AHJCode != "" {
		conditions = append(conditions, fmt.Sprintf("a.ahj_code = $%d", len(args)+1))
		args = append(args, filter.AHJCode)
	}
	if filter.AHJLevelCode != "" {
		conditions = append(conditions, fmt.Sprintf("lvl.value = $%d", len(args)+1))
		args = append(args, filter.AHJLevelCode)
	}
	if filter.StateProvince != "" {
		conditions = append(conditions, fmt.Sprintf("a.state_province = $%d", len(args)+1))
		args = append(args, filter.StateProvince)
	}
	codeFilters := []struct {
		column string
		values []string
	}{
		{"bc.value", filter.BuildingCode},
		{"ec.value", filter.ElectricCode},
		{"fc.value", filter.FireCode},
		{"rc.value", filter.ResidentialCode},
		{"wc.value", filter.WindCode},
	}
	for _, cf := range codeFilters {
		if len(cf.values) == 0 {
			continue
		}
		placeholders := make([]string, len(cf.values))
		for i, value := range cf.values {
			args = append(args, value)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", cf.column, strings.Join(placeholders, ",")))
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("%s%s ORDER BY a.ahj_name ASC, a.ahj_pk ASC LIMIT %d OFFSET %d",
		ahjSelect, baseQuery, limit, offset)
	var ahjs []models.AHJ
	if err := r.db.SelectContext(ctx, &ahjs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("search ahjs: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ahjs: %w", err)
	}

	return ahjs, total, nil
}

// GetByPK returns a single authority.
func (r *AHJRepository) GetByPK(ctx context.Context, pk string) (*models.AHJ, error) {
	query := ahjSelect + ahjJoins + " WHERE a.ahj_pk = $1 LIMIT 1"
	var ahj models.AHJ
	if err := r.db.GetContext(ctx, &ahj, query, pk); err != nil {
		return nil, err
	}
	return &ahj, nil
}

// ListContacts returns the contacts attached to an authority, oldest first.
func (r *AHJRepository) ListContacts(ctx context.Context, ahjPK string) ([]models.Contact, error) {
	const query = `SELECT contact_id, ahj_pk, first_name, last_name, title, work_phone, email, confirmed
	FROM contacts WHERE ahj_pk = $1 ORDER BY contact_id ASC`
	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, ahjPK); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// ListInspections returns the inspections attached to an authority.
func (r *AHJRepository) ListInspections(ctx context.Context, ahjPK string) ([]models.Inspection, error) {
	const query = `SELECT inspection_id, ahj_pk, inspection_name, inspection_type, technician_required, file_folder_url, confirmed
	FROM ahj_inspections WHERE ahj_pk = $1 ORDER BY inspection_id ASC`
	var inspections []models.Inspection
	if err := r.db.SelectContext(ctx, &inspections, query, ahjPK); err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	return inspections, nil
}

// ListEngineeringReviewRequirements returns the review requirements attached
// to an authority with the requirement level in display form.
func (r *AHJRepository) ListEngineeringReviewRequirements(ctx context.Context, ahjPK string) ([]models.EngineeringReviewRequirement, error) {
	const query = `SELECT e.requirement_id, e.ahj_pk, e.engineering_type,
       COALESCE(rl.value, '') AS requirement_level,
       e.requirement_notes, e.confirmed
	FROM engineering_review_requirements e
	LEFT JOIN requirement_levels rl ON rl.id = e.requirement_level
	WHERE e.ahj_pk = $1 ORDER BY e.requirement_id ASC`
	var requirements []models.EngineeringReviewRequirement
	if err := r.db.SelectContext(ctx, &requirements, query, ahjPK); err != nil {
		return nil, fmt.Errorf("list engineering review requirements: %w", err)
	}
	return requirements, nil
}

// ListFeeStructures returns the fee structures attached to an authority.
func (r *AHJRepository) ListFeeStructures(ctx context.Context, ahjPK string) ([]models.FeeStructure, error) {
	const query = `SELECT fee_structure_id, ahj_pk, fee_structure_name, fee_structure_type, description, confirmed
	FROM fee_structures WHERE ahj_pk = $1 ORDER BY fee_structure_id ASC`
	var fees []models.FeeStructure
	if err := r.db.SelectContext(ctx, &fees, query, ahjPK); err != nil {
		return nil, fmt.Errorf("list fee structures: %w", err)
	}
	return fees, nil
}
