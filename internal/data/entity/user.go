package entity

import "github.com/google/uuid"

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
)

// User is the slice of an identity record needed for authorization.
type User struct {
	ID   uuid.UUID `db:"id"`
	Role UserRole  `db:"role"`
}
