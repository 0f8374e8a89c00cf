package roles

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the principal holds no membership in the tenant.
	ErrNotFound = errors.New("roles: membership not found")
	// ErrBackendUnavailable indicates the membership backend could not be queried.
	ErrBackendUnavailable = errors.New("roles: membership backend unavailable")
)

// Membership links a user to a company with a role.
type Membership struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
	CreatedAt time.Time
}

// Resolved is the cached outcome of a role lookup.
type Resolved struct {
	CompanyID uuid.UUID `json:"company_id"`
	Role      string    `json:"role"`
}
