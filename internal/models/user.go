package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an operator role.
type Role string

const (
	RoleAdmin Role = "admin"
)

// User is a back-office operator account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
