package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

// Kind names a record type.
type Kind string

const (
	KindNetworkZone      Kind = "network_zone"
	KindRouter           Kind = "router"
	KindFirewallRule     Kind = "firewall_rule"
	KindMACFilter        Kind = "mac_filter"
	KindIPPool           Kind = "ip_pool"
	KindBandwidthProfile Kind = "bandwidth_profile"
	KindDeviceLimit      Kind = "device_limit"
)

// Kinds lists every record kind.
var Kinds = []Kind{
	KindNetworkZone,
	KindRouter,
	KindFirewallRule,
	KindMACFilter,
	KindIPPool,
	KindBandwidthProfile,
	KindDeviceLimit,
}

// ErrRecordNotFound is returned for a missing record.
var ErrRecordNotFound = apperrors.New(apperrors.CodeNotFound, "Record not found")

// ParseKind accepts snake_case or kebab-case kinds.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("unknown record kind %q", value))
}

// Spec is the kind-specific body of a record.
type Spec interface {
	Kind() Kind
	// Normalize validates the spec and returns its canonical form.
	Normalize() (Spec, error)
	// SearchText lists the fields matched by q= searches.
	SearchText() []string
	// CSVHeader and CSVRow describe the export columns after Name and Active.
	CSVHeader() []string
	CSVRow() []string
}

// Record is a stored configuration entry.
type Record struct {
	ID        string
	Kind      Kind
	Name      string
	Active    bool
	Spec      Spec
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Normalize validates the envelope and the spec.
func (r Record) Normalize() (Record, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return Record{}, apperrors.Invalid("name", "name is required")
	}
	if len([]rune(r.Name)) > 255 {
		return Record{}, apperrors.Invalid("name", "name must be at most 255 characters")
	}
	if r.Spec == nil {
		return Record{}, apperrors.Invalid("spec", "record body is required")
	}
	if r.Kind == "" {
		r.Kind = r.Spec.Kind()
	}
	if r.Kind != r.Spec.Kind() {
		return Record{}, apperrors.Invalid("kind", "record kind does not match its body")
	}
	spec, err := r.Spec.Normalize()
	if err != nil {
		return Record{}, err
	}
	r.Spec = spec
	return r, nil
}

// SearchText returns the name followed by the spec's search fields.
func (r Record) SearchText() string {
	parts := append([]string{r.Name}, r.Spec.SearchText()...)
	return strings.ToLower(strings.Join(parts, "\n"))
}

// CSVHeader returns the export header for kind.
func CSVHeader(kind Kind) ([]string, error) {
	spec, err := NewSpec(kind)
	if err != nil {
		return nil, err
	}
	return append([]string{"Name", "Active"}, spec.CSVHeader()...), nil
}

// CSVRow renders the record for export.
func (r Record) CSVRow() []string {
	active := "No"
	if r.Active {
		active = "Yes"
	}
	return append([]string{r.Name, active}, r.Spec.CSVRow()...)
}

// NewSpec returns an empty spec for kind.
func NewSpec(kind Kind) (Spec, error) {
	switch kind {
	case KindNetworkZone:
		return &NetworkZone{}, nil
	case KindRouter:
		return &Router{}, nil
	case KindFirewallRule:
		return &FirewallRule{}, nil
	case KindMACFilter:
		return &MACFilter{}, nil
	case KindIPPool:
		return &IPPool{}, nil
	case KindBandwidthProfile:
		return &BandwidthProfile{}, nil
	case KindDeviceLimit:
		return &DeviceLimit{}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

// DecodeSpec unmarshals a JSON body into the spec for kind. Unknown fields
// are rejected.
func DecodeSpec(kind Kind, data []byte) (Spec, error) {
	spec, err := NewSpec(kind)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(spec); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, fmt.Sprintf("invalid %s body: %v", kind, err), err)
	}
	return deref(spec), nil
}

// deref turns the pointer returned by NewSpec into the value type.
func deref(spec Spec) Spec {
	switch s := spec.(type) {
	case *NetworkZone:
		return *s
	case *Router:
		return *s
	case *FirewallRule:
		return *s
	case *MACFilter:
		return *s
	case *IPPool:
		return *s
	case *BandwidthProfile:
		return *s
	case *DeviceLimit:
		return *s
	default:
		return spec
	}
}
