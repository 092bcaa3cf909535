package models

// AHJ is an authority having jurisdiction. Enum-typed columns are carried in
// display form; the record store resolves them to lookup rows on write.
type AHJ struct {
	AHJPK           string `db:"ahj_pk" json:"ahjPK"`
	AHJID           string `db:"ahj_id" json:"ahjID"`
	AHJName         string `db:"ahj_name" json:"ahjName"`
	AHJCode         string `db:"ahj_code" json:"ahjCode"`
	AHJLevelCode    string `db:"ahj_level_code" json:"ahjLevelCode"`
	StateProvince   string `db:"state_province" json:"stateProvince"`
	Description     string `db:"description" json:"description"`
	URL             string `db:"url" json:"url"`
	BuildingCode    string `db:"building_code" json:"buildingCode"`
	ElectricCode    string `db:"electric_code" json:"electricCode"`
	FireCode        string `db:"fire_code" json:"fireCode"`
	ResidentialCode string `db:"residential_code" json:"residentialCode"`
	WindCode        string `db:"wind_code" json:"windCode"`
}

// Contact is a point of contact attached to an AHJ or inspection.
// Confirmed is the relation's soft add/delete flag: nil means proposed and
// never reviewed, true confirmed, false removed.
type Contact struct {
	ContactID string `db:"contact_id" json:"contactID"`
	AHJPK     string `db:"ahj_pk" json:"ahjPK"`
	FirstName string `db:"first_name" json:"firstName"`
	LastName  string `db:"last_name" json:"lastName"`
	Title     string `db:"title" json:"title"`
	WorkPhone string `db:"work_phone" json:"workPhone"`
	Email     string `db:"email" json:"email"`
	Confirmed *bool  `db:"confirmed" json:"confirmed,omitempty"`
}

// Inspection is an inspection type offered by an AHJ.
type Inspection struct {
	InspectionID       string `db:"inspection_id" json:"inspectionID"`
	AHJPK              string `db:"ahj_pk" json:"ahjPK"`
	InspectionName     string `db:"inspection_name" json:"inspectionName"`
	InspectionType     string `db:"inspection_type" json:"inspectionType"`
	TechnicianRequired bool   `db:"technician_required" json:"technicianRequired"`
	FileFolderURL      string `db:"file_folder_url" json:"fileFolderURL"`
	Confirmed          *bool  `db:"confirmed" json:"confirmed,omitempty"`
}

// EngineeringReviewRequirement describes a required engineering review.
type EngineeringReviewRequirement struct {
	RequirementID    string `db:"requirement_id" json:"requirementID"`
	AHJPK            string `db:"ahj_pk" json:"ahjPK"`
	EngineeringType  string `db:"engineering_type" json:"engineeringType"`
	RequirementLevel string `db:"requirement_level" json:"requirementLevel"`
	RequirementNotes string `db:"requirement_notes" json:"requirementNotes"`
	Confirmed        *bool  `db:"confirmed" json:"confirmed,omitempty"`
}

// FeeStructure describes a permitting fee.
type FeeStructure struct {
	FeeStructureID   string `db:"fee_structure_id" json:"feeStructureID"`
	AHJPK            string `db:"ahj_pk" json:"ahjPK"`
	FeeStructureName string `db:"fee_structure_name" json:"feeStructureName"`
	FeeStructureType string `db:"fee_structure_type" json:"feeStructureType"`
	Description      string `db:"description" json:"description"`
	Confirmed        *bool  `db:"confirmed" json:"confirmed,omitempty"`
}

// AHJFilter captures AHJ search criteria. Code filters match any of the
// provided display values.
type AHJFilter struct {
	AHJName         string
	AHJID           string
	AHJPK           string
	AHJCode         string
	AHJLevelCode    string
	StateProvince   string
	BuildingCode    []string
	ElectricCode    []string
	FireCode        []string
	ResidentialCode []string
	WindCode        []string
	Limit           int
	Offset          int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
