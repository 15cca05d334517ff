package user

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/platform/money"
)

var (
	// ErrInvalidUsername indicates a username outside the allowed format.
	ErrInvalidUsername = apperrors.Invalid("username", "username must be 3-50 letters, digits, dashes or underscores")
	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = apperrors.Invalid("email", "email address is invalid")
	// ErrInvalidPhone indicates a malformed phone number.
	ErrInvalidPhone = apperrors.Invalid("phone", "phone number must be 10-15 digits with an optional leading +")
	// ErrInvalidRole indicates an unknown role.
	ErrInvalidRole = apperrors.Invalid("role", "role must be user, admin or super_admin")
	// ErrInvalidStatus indicates an unknown account status.
	ErrInvalidStatus = apperrors.Invalid("status", "status must be active, suspended, banned or pending")

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	macPattern      = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)
)

// Role ranks console permissions.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r grants everything required grants.
func (r Role) AtLeast(required Role) bool {
	return r.Valid() && r.rank() >= required.rank()
}

// ParseRole normalizes a role string.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
	StatusPending   Status = "pending"
)

// ParseStatus normalizes a status string.
func ParseStatus(value string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusActive, StatusSuspended, StatusBanned, StatusPending:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// User is a console or subscriber account.
type User struct {
	ID            string
	Email         string
	Username      string
	Phone         string
	FullName      string
	PasswordHash  string
	Role          Role
	Status        Status
	WalletBalance money.Amount
	MACAddress    string
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the account may authenticate.
func (u User) Active() bool {
	return u.Status == StatusActive
}

// InactiveError describes why a non-active account was rejected.
func (u User) InactiveError() error {
	return apperrors.WithMetadata(apperrors.CodeAccountInactive, "Account is "+string(u.Status), map[string]string{"status": string(u.Status)})
}

// CreateUserInput describes the data needed to create an account.
type CreateUserInput struct {
	Email    string
	Username string
	Phone    string
	FullName string
	Password string
	Role     Role
	Status   Status
}

// ValidateUsername enforces the username format shared by accounts and
// router credentials.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return ErrInvalidUsername
	}
	return nil
}

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", apperrors.Invalid("email", "email is required")
	}
	parsed, err := mail.ParseAddress(value)
	if err != nil || parsed.Address != value || !strings.Contains(value[strings.LastIndex(value, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return value, nil
}

// NormalizePhone validates an optional phone number. Spaces and dashes are
// removed first.
func NormalizePhone(value string) (string, error) {
	value = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(value))
	if value == "" {
		return "", nil
	}
	if !phonePattern.MatchString(value) {
		return "", ErrInvalidPhone
	}
	return value, nil
}

// NormalizeMAC renders a MAC address as AA:BB:CC:DD:EE:FF. Dashes, dots and
// bare hex are accepted.
func NormalizeMAC(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	hex := strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(value))
	if len(hex) != 12 {
		return "", apperrors.Invalid("mac", "MAC address is invalid")
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	mac := b.String()
	if !macPattern.MatchString(mac) {
		return "", apperrors.Invalid("mac", "MAC address is invalid")
	}
	return mac, nil
}

// CreateUser builds a new account from validated input and hashes the
// password.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}
	if err := ValidatePasswordStrength(normalized.Password); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(normalized.Password)
	if err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:           userID,
		Email:        normalized.Email,
		Username:     normalized.Username,
		Phone:        normalized.Phone,
		FullName:     normalized.FullName,
		PasswordHash: hash,
		Role:         normalized.Role,
		Status:       normalized.Status,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// NormalizeCreateUserInput trims and validates input. Role and status
// default to user and active.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" {
		return CreateUserInput{}, apperrors.Invalid("username", "username is required")
	}
	if err := ValidateUsername(input.Username); err != nil {
		return CreateUserInput{}, err
	}
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return CreateUserInput{}, err
	}
	input.Email = email
	phone, err := NormalizePhone(input.Phone)
	if err != nil {
		return CreateUserInput{}, err
	}
	input.Phone = phone
	input.FullName = strings.TrimSpace(input.FullName)
	if len(input.FullName) > 255 {
		return CreateUserInput{}, apperrors.Invalid("full_name", "full name must be at most 255 characters")
	}
	if input.Role == "" {
		input.Role = RoleUser
	}
	if !input.Role.Valid() {
		return CreateUserInput{}, ErrInvalidRole
	}
	if input.Status == "" {
		input.Status = StatusActive
	}
	if _, err := ParseStatus(string(input.Status)); err != nil {
		return CreateUserInput{}, err
	}
	return input, nil
}
