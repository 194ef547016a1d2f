package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Role is the privilege flag carried by credentials and session snapshots.
type Role string

const (
	RoleMember Role = "member" // Records and reports on their own finances
	RoleAdmin  Role = "admin"  // Approves and revokes accounts
)

// IsPrivileged reports whether the role may call admin routes.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// AccountStatus tracks the admin approval workflow.
type AccountStatus string

const (
	StatusPending  AccountStatus = "pending"
	StatusApproved AccountStatus = "approved"
	StatusRevoked  AccountStatus = "revoked"
)

type User struct {
	ID           string        `json:"id,omitempty"`          // Unique identifier for the user
	Email        string        `json:"email,omitempty"`       // Login identifier, stored lower case
	Name         string        `json:"name,omitempty"`        // Display name
	PasswordHash string        `json:"-"`                     // bcrypt hash - never serialize
	Role         Role          `json:"role,omitempty"`        // member or admin
	Status       AccountStatus `json:"status,omitempty"`      // pending until an admin approves
	DateJoined   time.Time     `json:"date_joined,omitempty"` // Date and time when the user registered
	LastLogin    time.Time     `json:"last_login,omitempty"`  // Last successful login
}

// CanLogin reports whether the account status allows new sessions.
func (u *User) CanLogin() bool {
	return u.Status == StatusApproved
}

// NormaliseEmail lower-cases and trims an email so lookups are case insensitive.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
