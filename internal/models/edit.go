package models

import "time"

// EditType enumerates the kinds of tracked changes.
type EditType string

const (
	// EditTypeUpdate changes a single column of an existing row.
	EditTypeUpdate EditType = "UPDATE"
	// EditTypeAddition confirms a newly proposed relation row.
	EditTypeAddition EditType = "ADDITION"
	// EditTypeDeletion unconfirms an existing relation row.
	EditTypeDeletion EditType = "DELETION"
)

// ReviewStatus captures workflow states for proposed edits.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "PENDING"
	ReviewStatusApproved ReviewStatus = "APPROVED"
	ReviewStatusRejected ReviewStatus = "REJECTED"
)

// FieldRef addresses a single record-store field. Table must be one of the
// registered source tables; Row is the raw row identifier.
type FieldRef struct {
	Table  string
	Row    string
	Column string
}

// Edit is a tracked change to one field, or to the confirmation flag of one
// relation row. Edits are never physically deleted.
type Edit struct {
	EditID        int64        `db:"edit_id" json:"editId"`
	ChangedBy     string       `db:"changed_by" json:"changedBy"`
	ApprovedBy    *string      `db:"approved_by" json:"approvedBy,omitempty"`
	SourceTable   string       `db:"source_table" json:"sourceTable"`
	SourceRow     string       `db:"source_row" json:"sourceRow"`
	SourceColumn  string       `db:"source_column" json:"sourceColumn"`
	OldValue      string       `db:"old_value" json:"oldValue"`
	NewValue      string       `db:"new_value" json:"newValue"`
	EditType      EditType     `db:"edit_type" json:"editType"`
	ReviewStatus  ReviewStatus `db:"review_status" json:"reviewStatus"`
	DateRequested time.Time    `db:"date_requested" json:"dateRequested"`
	DateEffective *time.Time   `db:"date_effective" json:"dateEffective,omitempty"`
	IsApplied     bool         `db:"is_applied" json:"isApplied"`
	AHJPK         string       `db:"ahj_pk" json:"ahjPK"`
}

// FieldRef returns the record-store field this edit targets.
func (e *Edit) FieldRef() FieldRef {
	return FieldRef{Table: e.SourceTable, Row: e.SourceRow, Column: e.SourceColumn}
}

// OrderedBefore reports whether e precedes other in the ledger's canonical
// apply order: DateEffective ascending, ties broken by EditID ascending.
// Edits without an effective date never participate in apply ordering.
func (e *Edit) OrderedBefore(other *Edit) bool {
	if e.DateEffective == nil || other.DateEffective == nil {
		return e.DateEffective != nil
	}
	if e.DateEffective.Equal(*other.DateEffective) {
		return e.EditID < other.EditID
	}
	return e.DateEffective.Before(*other.DateEffective)
}

// EditFilter constrains ledger listing queries.
type EditFilter struct {
	AHJPK     string
	ChangedBy string
	Status    []ReviewStatus
	EditType  EditType
	Limit     int
	Offset    int
}
