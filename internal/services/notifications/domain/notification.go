// Package domain validates operator notifications.
package domain

import (
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	"github.com/zmooth/zmooth/internal/storage"
)

// Levels accepted on a notification.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// CreateInput is the admin compose form.
type CreateInput struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Audience string `json:"audience"`
	Level    string `json:"level"`
}

// Normalize trims input and applies the all/info defaults.
func (in CreateInput) Normalize() (CreateInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if in.Title == "" {
		return CreateInput{}, apperrors.Invalid("title", "title is required")
	}
	if len(in.Title) > 200 {
		return CreateInput{}, apperrors.Invalid("title", "title must be at most 200 characters")
	}
	if in.Message == "" {
		return CreateInput{}, apperrors.Invalid("message", "message is required")
	}
	switch in.Audience = strings.ToLower(strings.TrimSpace(in.Audience)); in.Audience {
	case "":
		in.Audience = storage.AudienceAll
	case storage.AudienceAll, storage.AudienceAdmins, storage.AudienceCustomers:
	default:
		return CreateInput{}, apperrors.Invalid("audience", "audience must be all, admins or customers")
	}
	switch in.Level = strings.ToLower(strings.TrimSpace(in.Level)); in.Level {
	case "":
		in.Level = LevelInfo
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
	default:
		return CreateInput{}, apperrors.Invalid("level", "level must be info, success, warning or error")
	}
	return in, nil
}

// AudiencesFor returns the audiences a role may read.
func AudiencesFor(role user.Role) []string {
	if role.AtLeast(user.RoleAdmin) {
		return []string{storage.AudienceAll, storage.AudienceAdmins, storage.AudienceCustomers}
	}
	return []string{storage.AudienceAll, storage.AudienceCustomers}
}
