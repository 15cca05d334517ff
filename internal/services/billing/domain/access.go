package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
)

// CredentialAlphabet avoids characters that read alike on printed slips.
const CredentialAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// AccessStatus is the state of a router access account.
type AccessStatus string

const (
	AccessActive   AccessStatus = "active"
	AccessDisabled AccessStatus = "disabled"
	AccessExpired  AccessStatus = "expired"
)

// AccessAccount is an admin-created hotspot user or PPP secret.
type AccessAccount struct {
	ID         string
	Username   string
	Password   string
	Service    Service
	PlanID     string
	Profile    string
	ExpiresAt  *time.Time
	Status     AccessStatus
	MACAddress string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Normalize validates the account fields.
func (a AccessAccount) Normalize() (AccessAccount, error) {
	a.Username = strings.TrimSpace(a.Username)
	a.Password = strings.TrimSpace(a.Password)
	if n := len(a.Username); n < 3 || n > 64 {
		return AccessAccount{}, apperrors.Invalid("username", "username must be 3-64 characters")
	}
	if strings.ContainsAny(a.Username, " \t\"'") {
		return AccessAccount{}, apperrors.Invalid("username", "username must not contain spaces or quotes")
	}
	if len(a.Password) < 4 {
		return AccessAccount{}, apperrors.Invalid("password", "password must be at least 4 characters")
	}
	service, err := ParseService(string(a.Service))
	if err != nil {
		return AccessAccount{}, err
	}
	a.Service = service
	switch a.Status {
	case "":
		a.Status = AccessActive
	case AccessActive, AccessDisabled, AccessExpired:
	default:
		return AccessAccount{}, apperrors.Invalid("status", "status must be active, disabled or expired")
	}
	return a, nil
}

// AccessExpiry follows the plan validity, falling back to parsing the plan
// name as a duration phrase.
func AccessExpiry(plan Plan, from time.Time) time.Time {
	if expires := plan.ExpiresAt(from); expires != nil {
		return *expires
	}
	return cycle.ExpiryFromText(from, plan.Name)
}

// Credentials is a generated username and password pair.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GenerateCredentials returns an 8-character username and password.
func GenerateCredentials() (Credentials, error) {
	username, err := randomString(rand.Reader, CredentialAlphabet, 8)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate username: %w", err)
	}
	password, err := randomString(rand.Reader, CredentialAlphabet, 8)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate password: %w", err)
	}
	return Credentials{Username: username, Password: password}, nil
}
