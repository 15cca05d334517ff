package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/export"
	"github.com/zmooth/zmooth/internal/platform/httpx"
	"github.com/zmooth/zmooth/internal/storage"
)

type pageResponse[V any] struct {
	Items         []V    `json:"items"`
	NextPageToken string `json:"next_page_token"`
}

// listQuery reads q, filter, page_size and page_token.
func listQuery(r *http.Request) (storage.ListQuery, error) {
	values := r.URL.Query()
	query := storage.ListQuery{
		Query:     strings.TrimSpace(values.Get("q")),
		Filter:    strings.TrimSpace(values.Get("filter")),
		PageToken: strings.TrimSpace(values.Get("page_token")),
	}
	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			return storage.ListQuery{}, apperrors.Invalid("page_size", "page_size must be a non-negative integer")
		}
		query.PageSize = size
	}
	return query, nil
}

// boolParam reads an optional boolean query parameter.
func boolParam(r *http.Request, name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.Invalid(name, name+" must be true or false")
	}
	return value, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid(name, name+" must be an integer")
	}
	return value, nil
}

func writePage[T, V any](w http.ResponseWriter, page storage.Page[T], view func(T) V) {
	items := make([]V, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, view(item))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, pageResponse[V]{Items: items, NextPageToken: page.NextPageToken})
}

func writeItems[T, V any](w http.ResponseWriter, list []T, view func(T) V) {
	writePage(w, storage.Page[T]{Items: list}, view)
}

func same[T any](item T) T { return item }

func writeCSV(w http.ResponseWriter, resource string, h handlers, body []byte) {
	_ = httpx.WriteAttachment(w, export.Filename(resource, h.now(), "csv"), export.ContentType, body)
}

// bulkEndpoint couples a resource's batch action with its export.
type bulkEndpoint struct {
	resource string
	allowed  []bulk.Action
	apply    func(ctx context.Context, action bulk.Action, ids []string) (int, error)
	export   func(ctx context.Context, ids []string) ([]byte, error)
}

// serveBulk validates the selection, then either streams the CSV of the
// selected ids or applies the action.
func (h handlers) serveBulk(w http.ResponseWriter, r *http.Request, endpoint bulkEndpoint) {
	var req bulk.Request
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	action, ids, err := req.Validate(endpoint.allowed...)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if action == bulk.Export {
		body, err := endpoint.export(r.Context(), ids)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		writeCSV(w, endpoint.resource, h, body)
		return
	}
	n, err := endpoint.apply(r.Context(), action, ids)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, bulk.Result{Action: action, Affected: n})
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.WriteError(w, err)
		return false
	}
	return true
}

func pathID(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}

func writeOK(w http.ResponseWriter, payload any) {
	_ = httpx.WriteJSON(w, http.StatusOK, payload)
}

func writeCreated(w http.ResponseWriter, payload any) {
	_ = httpx.WriteJSON(w, http.StatusCreated, payload)
}
