// Package branding holds the product name and the operator-editable portal
// branding stored in settings.
package branding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

// AppName is the product name used when no company name is configured.
const AppName = "zmooth"

// SettingKey is the settings row that stores Settings as JSON.
const SettingKey = "branding"

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Settings customise the captive portal.
type Settings struct {
	CompanyName  string `json:"company_name"`
	LogoURL      string `json:"logo_url"`
	PrimaryColor string `json:"primary_color"`
	SupportPhone string `json:"support_phone"`
	SupportEmail string `json:"support_email"`
	WelcomeText  string `json:"welcome_text"`
}

// Defaults is served until an admin saves branding.
func Defaults() Settings {
	return Settings{
		CompanyName:  AppName,
		PrimaryColor: "#0f766e",
		WelcomeText:  "Buy a plan or redeem a voucher to get online.",
	}
}

// Normalize validates settings and fills blanks from Defaults.
func (s Settings) Normalize() (Settings, error) {
	defaults := Defaults()
	s.CompanyName = strings.TrimSpace(s.CompanyName)
	if s.CompanyName == "" {
		s.CompanyName = defaults.CompanyName
	}
	if len(s.CompanyName) > 100 {
		return Settings{}, apperrors.Invalid("company_name", "company name must be at most 100 characters")
	}
	s.LogoURL = strings.TrimSpace(s.LogoURL)
	if s.LogoURL != "" {
		parsed, err := url.Parse(s.LogoURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return Settings{}, apperrors.Invalid("logo_url", "logo URL must be an http or https URL")
		}
	}
	s.PrimaryColor = strings.TrimSpace(s.PrimaryColor)
	if s.PrimaryColor == "" {
		s.PrimaryColor = defaults.PrimaryColor
	}
	if !colorPattern.MatchString(s.PrimaryColor) {
		return Settings{}, apperrors.Invalid("primary_color", "primary color must be a hex color such as #0f766e")
	}
	s.SupportPhone = strings.TrimSpace(s.SupportPhone)
	s.SupportEmail = strings.TrimSpace(s.SupportEmail)
	if s.SupportEmail != "" && !strings.Contains(s.SupportEmail, "@") {
		return Settings{}, apperrors.Invalid("support_email", "support email is not valid")
	}
	s.WelcomeText = strings.TrimSpace(s.WelcomeText)
	if s.WelcomeText == "" {
		s.WelcomeText = defaults.WelcomeText
	}
	return s, nil
}

// Store is the settings persistence branding needs.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string, now time.Time) error
}

// Load returns saved branding, or Defaults when none is saved.
func Load(ctx context.Context, store Store) (Settings, error) {
	raw, err := store.GetSetting(ctx, SettingKey)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return Defaults(), nil
		}
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("decode branding: %w", err)
	}
	return s.Normalize()
}

// Save validates and stores branding.
func Save(ctx context.Context, store Store, s Settings, now time.Time) (Settings, error) {
	if store == nil {
		return Settings{}, errors.New("settings store is required")
	}
	s, err := s.Normalize()
	if err != nil {
		return Settings{}, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return Settings{}, fmt.Errorf("encode branding: %w", err)
	}
	if err := store.PutSetting(ctx, SettingKey, string(raw), now); err != nil {
		return Settings{}, err
	}
	return s, nil
}
