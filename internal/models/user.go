package models

import (
	"time"
)

// Roles assignable to users. RoleAdmin is the highest privilege level and
// gates irreversible administrative operations.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleTenant  = "tenant"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string // "admin", "manager", "tenant"
	Status       string // "active", "disabled"
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Login-guard state, owned by services.AccountGuard. locked_until is only
	// meaningful while locked is true.
	FailedLoginCount  int
	LastFailedLoginAt *time.Time
	StepUpRequired    bool
	Locked            bool
	LockedUntil       *time.Time
}

// IsAdmin reports whether the user holds the highest privilege role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive reports whether the account may attempt to log in at all.
func (u *User) IsActive() bool {
	return u.Status == "active"
}
