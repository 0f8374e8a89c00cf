// Package companies manages tenants and the memberships that carry roles.
package companies

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("company not found")
	ErrNotMember       = errors.New("not a member of company")
	ErrAlreadyMember   = errors.New("already a member of company")
	ErrUnknownRole     = errors.New("role is not defined by the policy")
	ErrLastAdmin       = errors.New("company must keep at least one admin")
	ErrRoleNotJoinable = errors.New("role can not be requested through a join code")
)

// Company represents a tenant.
type Company struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	ContactNumber string    `json:"contact_number"`
	Email         string    `json:"email"`
	Premium       bool      `json:"premium"`
	UniqueCode    string    `json:"unique_code"`
	CreatorID     uuid.UUID `json:"creator_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Membership is a company seen from one of its members.
type Membership struct {
	Company  Company   `json:"company"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Member is a user seen from the company.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
