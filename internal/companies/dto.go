package companies

import "github.com/google/uuid"

// CreateForm carries the fields of a new company.
type CreateForm struct {
	Name          string `json:"name" validate:"required,max=200"`
	Address       string `json:"address" validate:"max=500"`
	ContactNumber string `json:"contact_number" validate:"max=40"`
	Email         string `json:"email" validate:"omitempty,email,max=254"`
	Premium       bool   `json:"premium"`
}

// JoinForm requests membership through a company's join code.
type JoinForm struct {
	UniqueCode string `json:"unique_code" validate:"required,max=32"`
	Role       string `json:"role" validate:"omitempty,max=64"`
}

// SwitchForm selects the active company of the session.
type SwitchForm struct {
	CompanyID uuid.UUID `json:"company_id" validate:"required"`
}

// RoleForm changes a member's role.
type RoleForm struct {
	Role string `json:"role" validate:"required,max=64"`
}
