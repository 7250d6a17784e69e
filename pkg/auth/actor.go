package auth

import (
	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/pkg/enums"
)

// Actor is the authenticated caller threaded explicitly through every
// cart, order and analytics operation.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   enums.Role
}

// IsAdmin reports whether the actor may manage orders and read analytics.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// Valid reports whether the actor carries an identity.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil
}
