package dto

import "github.com/openpermit/ahj-registry-api/internal/models"

// UpdateEditItem proposes a new value for a single record-store field. The
// update endpoint accepts a batch of these.
type UpdateEditItem struct {
	AHJPK        string `json:"AHJPK"`
	SourceTable  string `json:"SourceTable"`
	SourceRow    string `json:"SourceRow"`
	SourceColumn string `json:"SourceColumn"`
	NewValue     string `json:"NewValue"`
}

// CreateAdditionRequest proposes new sub-records under a parent row. Each
// entry of Value holds the column values for one new row; the rows are
// created unconfirmed and an addition edit tracks each confirmation.
type CreateAdditionRequest struct {
	SourceTable string              `json:"SourceTable"`
	AHJPK       string              `json:"AHJPK"`
	ParentTable string              `json:"ParentTable"`
	ParentID    string              `json:"ParentID"`
	Value       []map[string]string `json:"Value"`
}

// CreateDeletionRequest proposes removal of existing sub-records by row id.
type CreateDeletionRequest struct {
	SourceTable string   `json:"SourceTable"`
	AHJPK       string   `json:"AHJPK"`
	ParentTable string   `json:"ParentTable"`
	ParentID    string   `json:"ParentID"`
	Value       []string `json:"Value"`
}

// ReviewEditRequest captures the reviewer decision.
type ReviewEditRequest struct {
	EditID int64               `json:"EditID"`
	Status models.ReviewStatus `json:"Status"`
}

// ResetEditRequest carries the optional reset overrides.
type ResetEditRequest struct {
	ForceResettable bool `json:"ForceResettable"`
	SkipUndo        bool `json:"SkipUndo"`
}

// EditQuery mirrors supported ledger listing filters.
type EditQuery struct {
	AHJPK     string
	ChangedBy string
	Status    []models.ReviewStatus
}
