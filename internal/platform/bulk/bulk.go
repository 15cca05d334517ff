// Package bulk validates batch actions over a selected set of record ids.
package bulk

import (
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

// Action names a batch operation.
type Action string

const (
	Activate       Action = "activate"
	Deactivate     Action = "deactivate"
	Pause          Action = "pause"
	Delete         Action = "delete"
	Export         Action = "export"
	EnableRenewal  Action = "enable-renewal"
	DisableRenewal Action = "disable-renewal"
	MarkPaid       Action = "mark-paid"
	Cancel         Action = "cancel"
	Suspend        Action = "suspend"
	Enable         Action = "enable"
	Disable        Action = "disable"
)

// MaxIDs caps a single batch.
const MaxIDs = 1000

// ErrEmptySelection is returned when no records are selected.
var ErrEmptySelection = apperrors.New(apperrors.CodeEmptySelection, "select records first")

// Request is the JSON body of a bulk endpoint.
type Request struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids"`
}

// Result reports how many records a non-export action touched.
type Result struct {
	Action   Action `json:"action"`
	Affected int    `json:"affected"`
}

// Validate normalises the request against the allowed actions. Ids are
// trimmed and de-duplicated in order.
func (r Request) Validate(allowed ...Action) (Action, []string, error) {
	ids := make([]string, 0, len(r.IDs))
	seen := make(map[string]struct{}, len(r.IDs))
	for _, id := range r.IDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", nil, ErrEmptySelection
	}
	if len(ids) > MaxIDs {
		return "", nil, apperrors.New(apperrors.CodeInvalidArgument, "too many records selected")
	}

	action := Action(strings.ToLower(strings.TrimSpace(r.Action)))
	if action == "" {
		return "", nil, apperrors.Invalid("action", "action is required")
	}
	for _, candidate := range allowed {
		if candidate == action {
			return action, ids, nil
		}
	}
	return "", nil, apperrors.WithMetadata(apperrors.CodeUnsupportedAction, "unsupported bulk action "+string(action), map[string]string{"action": string(action)})
}
