package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Clinic invariant: ClinicID must be present on every token.
// Admin capabilities are checked server-side in internal/rbac, never inferred from claims alone.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	ClinicID  string    `json:"clinic_id"`
	Role      string    `json:"role"`
	Name      string    `json:"name,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// Identity is the authenticated caller as seen by handlers.
type Identity struct {
	UserID   string
	ClinicID string
	Role     string
	// Name is shown to the other participant when ringing.
	Name string
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, ClinicID: c.ClinicID, Role: c.Role, Name: c.Name}
}
