package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/billing/cycle"
)

var (
	// ErrPlanNotFound is returned for a missing plan.
	ErrPlanNotFound = apperrors.New(apperrors.CodeNotFound, "Plan not found")
	// ErrPlanUnavailable is returned when purchasing a missing or inactive plan.
	ErrPlanUnavailable = apperrors.New(apperrors.CodePlanUnavailable, "Plan not found or not available")
	// ErrPlanNameTaken is returned when a plan name is reused.
	ErrPlanNameTaken = apperrors.New(apperrors.CodeInvalidArgument, "Plan with this name already exists")
)

// Service is the connectivity model a plan or account is sold for.
type Service string

const (
	ServiceHotspot Service = "hotspot"
	ServicePPPoE   Service = "pppoe"
)

// ParseService normalizes a service name. Empty defaults to hotspot.
func ParseService(value string) (Service, error) {
	switch s := Service(strings.ToLower(strings.TrimSpace(value))); s {
	case "":
		return ServiceHotspot, nil
	case ServiceHotspot, ServicePPPoE:
		return s, nil
	default:
		return "", apperrors.Invalid("service", "service must be hotspot or pppoe")
	}
}

// PlanType selects which limit a plan enforces.
type PlanType string

const (
	PlanDataBased PlanType = "data_based"
	PlanTimeBased PlanType = "time_based"
	PlanUnlimited PlanType = "unlimited"
)

// Plan is a sellable internet package.
type Plan struct {
	ID              string
	Name            string
	Description     string
	Service         Service
	Type            PlanType
	Price           money.Amount
	Currency        string
	DataLimitMB     int64
	ValidityDays    int
	ValidityHours   int
	DownloadKbps    int
	UploadKbps      int
	Devices         int
	MikrotikProfile string
	BillingCycle    cycle.Cycle
	IsActive        bool
	IsFeatured      bool
	SortOrder       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PlanPatch carries a partial plan update; nil fields are left unchanged.
type PlanPatch struct {
	Name            *string       `json:"name"`
	Description     *string       `json:"description"`
	Service         *string       `json:"service"`
	Type            *string       `json:"plan_type"`
	Price           *money.Amount `json:"price"`
	Currency        *string       `json:"currency"`
	DataLimitMB     *int64        `json:"data_limit_mb"`
	ValidityDays    *int          `json:"validity_days"`
	ValidityHours   *int          `json:"validity_hours"`
	DownloadKbps    *int          `json:"download_kbps"`
	UploadKbps      *int          `json:"upload_kbps"`
	Devices         *int          `json:"devices"`
	MikrotikProfile *string       `json:"mikrotik_profile"`
	BillingCycle    *string       `json:"billing_cycle"`
	IsActive        *bool         `json:"is_active"`
	IsFeatured      *bool         `json:"is_featured"`
	SortOrder       *int          `json:"sort_order"`
}

// Normalize trims text fields, applies defaults and validates the plan.
func (p Plan) Normalize() (Plan, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.MikrotikProfile = strings.TrimSpace(p.MikrotikProfile)

	if n := len([]rune(p.Name)); n < 3 || n > 255 {
		return Plan{}, apperrors.Invalid("name", "name must be 3-255 characters")
	}
	service, err := ParseService(string(p.Service))
	if err != nil {
		return Plan{}, err
	}
	p.Service = service

	switch p.Type = PlanType(strings.ToLower(strings.TrimSpace(string(p.Type)))); p.Type {
	case "":
		p.Type = PlanTimeBased
	case PlanDataBased, PlanTimeBased, PlanUnlimited:
	default:
		return Plan{}, apperrors.Invalid("plan_type", "plan type must be data_based, time_based or unlimited")
	}

	if p.Price <= 0 {
		return Plan{}, apperrors.Invalid("price", "price must be greater than zero")
	}
	currency, err := money.ValidateCurrency(p.Currency)
	if err != nil {
		return Plan{}, apperrors.Invalid("currency", err.Error())
	}
	p.Currency = currency

	if p.DataLimitMB < 0 || p.ValidityDays < 0 || p.ValidityHours < 0 || p.DownloadKbps < 0 || p.UploadKbps < 0 {
		return Plan{}, apperrors.Invalid("limits", "limits must not be negative")
	}
	if p.Type == PlanDataBased && p.DataLimitMB == 0 {
		return Plan{}, apperrors.Invalid("data_limit_mb", "data limit is required for data-based plans")
	}
	if p.Type == PlanTimeBased && p.ValidityDays == 0 && p.ValidityHours == 0 {
		return Plan{}, apperrors.Invalid("validity", "validity days or hours are required for time-based plans")
	}

	if p.Devices == 0 {
		p.Devices = 1
	}
	if p.Devices < 1 || p.Devices > 50 {
		return Plan{}, apperrors.Invalid("devices", "devices must be between 1 and 50")
	}

	if p.BillingCycle != "" {
		c, err := cycle.Parse(string(p.BillingCycle))
		if err != nil {
			return Plan{}, err
		}
		p.BillingCycle = c
	}
	return p, nil
}

// Apply returns the plan with patch applied and re-validated.
func (p Plan) Apply(patch PlanPatch) (Plan, error) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Service != nil {
		p.Service = Service(*patch.Service)
	}
	if patch.Type != nil {
		p.Type = PlanType(*patch.Type)
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Currency != nil {
		p.Currency = *patch.Currency
	}
	if patch.DataLimitMB != nil {
		p.DataLimitMB = *patch.DataLimitMB
	}
	if patch.ValidityDays != nil {
		p.ValidityDays = *patch.ValidityDays
	}
	if patch.ValidityHours != nil {
		p.ValidityHours = *patch.ValidityHours
	}
	if patch.DownloadKbps != nil {
		p.DownloadKbps = *patch.DownloadKbps
	}
	if patch.UploadKbps != nil {
		p.UploadKbps = *patch.UploadKbps
	}
	if patch.Devices != nil {
		p.Devices = *patch.Devices
	}
	if patch.MikrotikProfile != nil {
		p.MikrotikProfile = *patch.MikrotikProfile
	}
	if patch.BillingCycle != nil {
		p.BillingCycle = cycle.Cycle(*patch.BillingCycle)
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.IsFeatured != nil {
		p.IsFeatured = *patch.IsFeatured
	}
	if patch.SortOrder != nil {
		p.SortOrder = *patch.SortOrder
	}
	return p.Normalize()
}

// RateLimit renders the router rate-limit string, or "" unless both
// speeds are set.
func (p Plan) RateLimit() string {
	if p.DownloadKbps <= 0 || p.UploadKbps <= 0 {
		return ""
	}
	return fmt.Sprintf("%dk/%dk", p.DownloadKbps, p.UploadKbps)
}

// Validity returns the plan's validity window, or 0 when unbounded.
func (p Plan) Validity() time.Duration {
	switch {
	case p.ValidityDays > 0:
		return time.Duration(p.ValidityDays) * 24 * time.Hour
	case p.ValidityHours > 0:
		return time.Duration(p.ValidityHours) * time.Hour
	default:
		return 0
	}
}

// ExpiresAt computes the expiry of an activation starting at from. Days win
// over hours; with neither set there is no expiry.
func (p Plan) ExpiresAt(from time.Time) *time.Time {
	var expires time.Time
	switch {
	case p.ValidityDays > 0:
		expires = from.AddDate(0, 0, p.ValidityDays)
	case p.ValidityHours > 0:
		expires = from.Add(time.Duration(p.ValidityHours) * time.Hour)
	default:
		return nil
	}
	return &expires
}

// SessionTimeout renders the validity as a RouterOS duration, or "".
func (p Plan) SessionTimeout() string {
	switch {
	case p.ValidityDays > 0:
		return fmt.Sprintf("%dd", p.ValidityDays)
	case p.ValidityHours > 0:
		return fmt.Sprintf("%dh", p.ValidityHours)
	default:
		return ""
	}
}
