package dto

import "github.com/openpermit/ahj-registry-api/internal/models"

// SearchAHJRequest filters the AHJ listing. Code filters accept multiple
// display values and match any of them.
type SearchAHJRequest struct {
	AHJName         string   `json:"AHJName"`
	AHJID           string   `json:"AHJID"`
	AHJPK           string   `json:"AHJPK"`
	AHJCode         string   `json:"AHJCode"`
	AHJLevelCode    string   `json:"AHJLevelCode"`
	StateProvince   string   `json:"StateProvince"`
	BuildingCode    []string `json:"BuildingCode"`
	ElectricCode    []string `json:"ElectricCode"`
	FireCode        []string `json:"FireCode"`
	ResidentialCode []string `json:"ResidentialCode"`
	WindCode        []string `json:"WindCode"`
	Limit           int      `json:"Limit"`
	Offset          int      `json:"Offset"`
}

// AHJView is the serialized single-AHJ payload. Sub-records are split by
// confirmation status so clients can render proposed rows separately.
type AHJView struct {
	models.AHJ

	Contacts                      []models.Contact                      `json:"Contacts"`
	UnconfirmedContacts           []models.Contact                      `json:"UnconfirmedContacts"`
	Inspections                   []models.Inspection                   `json:"Inspections"`
	UnconfirmedInspections        []models.Inspection                   `json:"UnconfirmedInspections"`
	EngineeringReviewRequirements []models.EngineeringReviewRequirement `json:"EngineeringReviewRequirements"`
	UnconfirmedRequirements       []models.EngineeringReviewRequirement `json:"UnconfirmedEngineeringReviewRequirements"`
	FeeStructures                 []models.FeeStructure                 `json:"FeeStructures"`
	UnconfirmedFeeStructures      []models.FeeStructure                 `json:"UnconfirmedFeeStructures"`
}

// SearchAHJResponse wraps the listing payload.
type SearchAHJResponse struct {
	AHJList []models.AHJ `json:"ahjlist"`
	Total   int          `json:"total"`
}
