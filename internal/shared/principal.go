package shared

import (
	"strings"

	"github.com/google/uuid"
)

// Principal is the authenticated identity attempting an action.
type Principal struct {
	UserID    uuid.UUID
	SessionID string
	// CompanyID is the active tenant. uuid.Nil selects the user's primary company.
	CompanyID uuid.UUID
}

// Key identifies the principal in logs.
func (p Principal) Key() string {
	return p.UserID.String()
}

// Authenticated reports whether the principal carries a user and a session.
func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil && strings.TrimSpace(p.SessionID) != ""
}

// PrincipalFromSession derives the principal bound to sess. The second result
// is false for anonymous or malformed sessions.
func PrincipalFromSession(sess *Session) (Principal, bool) {
	if sess == nil {
		return Principal{}, false
	}
	userID, err := uuid.Parse(strings.TrimSpace(sess.User()))
	if err != nil || userID == uuid.Nil {
		return Principal{}, false
	}
	p := Principal{UserID: userID, SessionID: sess.ID}
	if raw := sess.Company(); raw != "" {
		if companyID, err := uuid.Parse(raw); err == nil {
			p.CompanyID = companyID
		}
	}
	return p, true
}
