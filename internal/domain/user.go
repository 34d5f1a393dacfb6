package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// Role controls what an account may do.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the public account record. Credential material lives in UserAuth
// so that reads and listings can never select the password hash.
type User struct {
	ID          string
	Username    string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Role        Role
	Status      UserStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserAuth holds the credential record joined to a User by user id.
type UserAuth struct {
	ID           string
	UserID       string
	PasswordHash string
	LastLogin    *time.Time
}
