package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleMember UserRole = "MEMBER"
)

// User represents an application user stored in the users table.
type User struct {
	ID                 string     `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	Username           string     `db:"username" json:"username"`
	FirstName          string     `db:"first_name" json:"firstName"`
	LastName           string     `db:"last_name" json:"lastName"`
	Title              string     `db:"title" json:"title"`
	PersonalBio        string     `db:"personal_bio" json:"personalBio"`
	URL                string     `db:"url" json:"url"`
	CompanyAffiliation string     `db:"company_affiliation" json:"companyAffiliation"`
	WorkPhone          string     `db:"work_phone" json:"workPhone"`
	Role               UserRole   `db:"role" json:"role"`
	Active             bool       `db:"active" json:"active"`
	LastLogin          *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// AHJMaintainer grants a user review authority over one AHJ. Revocation is
// soft: the row stays with MaintainerStatus false.
type AHJMaintainer struct {
	UserID           string    `db:"user_id" json:"userID"`
	AHJPK            string    `db:"ahj_pk" json:"ahjPK"`
	MaintainerStatus bool      `db:"maintainer_status" json:"maintainerStatus"`
	GrantedAt        time.Time `db:"granted_at" json:"grantedAt"`
}
