package dto

// UpdateUserRequest carries profile changes. Only these fields may be
// changed through the profile endpoint; anything else is rejected.
type UpdateUserRequest struct {
	Username           *string `json:"Username,omitempty"`
	FirstName          *string `json:"FirstName,omitempty"`
	LastName           *string `json:"LastName,omitempty"`
	Title              *string `json:"Title,omitempty"`
	PersonalBio        *string `json:"PersonalBio,omitempty"`
	URL                *string `json:"URL,omitempty"`
	CompanyAffiliation *string `json:"CompanyAffiliation,omitempty"`
	WorkPhone          *string `json:"WorkPhone,omitempty"`
}

// MaintainerRequest assigns or revokes maintainer rights over an AHJ.
type MaintainerRequest struct {
	Username string `json:"Username"`
	AHJPK    string `json:"AHJPK"`
}
