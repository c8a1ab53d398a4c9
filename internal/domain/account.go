package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Account is a registered user's persisted identity and credential record.
type Account struct {
	ID                int64      `json:"id"`
	Username          string     `json:"user_name"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone_number"`
	PasswordHash      string     `json:"-"`
	Role              string     `json:"role"`
	Active            bool       `json:"active"`
	EmailVerified     bool       `json:"email_verified"`
	FailedAttempts    int        `json:"-"`
	LockedUntil       *time.Time `json:"-"`
	PasswordChangedAt *time.Time `json:"-"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsLocked reports whether the account is locked at the given instant.
// A lock whose locked_until has elapsed no longer counts (lazy expiry).
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// FullName is derived on read, never stored.
func (a *Account) FullName() string {
	return a.FirstName + " " + a.LastName
}

// ChangedPasswordAfter reports whether the password changed after the given
// token issue time. Tokens issued before a password change are stale.
func (a *Account) ChangedPasswordAfter(issuedAt time.Time) bool {
	return a.PasswordChangedAt != nil && a.PasswordChangedAt.After(issuedAt)
}

// AccountSummary is the externally visible shape of an account,
// excluding credentials and lockout bookkeeping.
type AccountSummary struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	FullName      string `json:"fullName"`
	Username      string `json:"userName"`
	Email         string `json:"email"`
	Phone         string `json:"phoneNumber"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

func (a *Account) ToSummary() *AccountSummary {
	return &AccountSummary{
		ID:            a.ID,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		FullName:      a.FullName(),
		Username:      a.Username,
		Email:         a.Email,
		Phone:         a.Phone,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
	}
}

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"userName"`
	Email     string `json:"email"`
	Phone     string `json:"phoneNumber"`
	Password  string `json:"password"`
}

// LoginRequest identifies the account by email or username.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"userName"`
	Password string `json:"password"`
}

// Identifier returns the lookup key for the login, email preferred.
func (r *LoginRequest) Identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

type LoginResponse struct {
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expires_in"`
	Account   *AccountSummary `json:"user"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Phone     *string `json:"phoneNumber,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Account roles
const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleVendor    = "vendor"
	RoleModerator = "moderator"
)

var validRoles = map[string]bool{
	RoleUser:      true,
	RoleAdmin:     true,
	RoleVendor:    true,
	RoleModerator: true,
}

func IsValidRole(role string) bool {
	return validRoles[role]
}

// Field length limits carried over from the account schema.
const (
	nameMinLen     = 3
	nameMaxLen     = 21
	passwordMinLen = 6
	passwordMaxLen = 64
)

func (r *RegisterRequest) Validate() error {
	if r.FirstName == "" || r.LastName == "" || r.Username == "" || r.Email == "" || r.Phone == "" || r.Password == "" {
		return fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if err := validateName("first name", r.FirstName); err != nil {
		return err
	}
	if err := validateName("last name", r.LastName); err != nil {
		return err
	}
	if err := validateName("user name", r.Username); err != nil {
		return err
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	if !isValidPhone(r.Phone) {
		return fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	if len(r.Password) < passwordMinLen || len(r.Password) > passwordMaxLen {
		return fmt.Errorf("%w: password must be between %d and %d characters", ErrValidation, passwordMinLen, passwordMaxLen)
	}
	return nil
}

func (r *LoginRequest) Validate() error {
	if (r.Email == "" && r.Username == "") || r.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (r *UpdateProfileRequest) Validate() error {
	if r.FirstName != nil {
		if err := validateName("first name", *r.FirstName); err != nil {
			return err
		}
	}
	if r.LastName != nil {
		if err := validateName("last name", *r.LastName); err != nil {
			return err
		}
	}
	if r.Phone != nil && !isValidPhone(*r.Phone) {
		return fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	return nil
}

func (r *ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" || r.NewPassword == "" {
		return fmt.Errorf("%w: current and new password are required", ErrValidation)
	}
	if len(r.NewPassword) < passwordMinLen || len(r.NewPassword) > passwordMaxLen {
		return fmt.Errorf("%w: password must be between %d and %d characters", ErrValidation, passwordMinLen, passwordMaxLen)
	}
	return nil
}

func validateName(field, value string) error {
	if len(value) < nameMinLen || len(value) > nameMaxLen {
		return fmt.Errorf("%w: %s must be between %d and %d characters", ErrValidation, field, nameMinLen, nameMaxLen)
	}
	return nil
}

func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

func isValidPhone(phone string) bool {
	phoneRegex := regexp.MustCompile(`^[\+]?[\d\s\-\(\)]+$`)
	return phoneRegex.MatchString(phone) && len(phone) >= 7
}

// Normalize lowercases the email and trims whitespace from identity fields.
func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
}
