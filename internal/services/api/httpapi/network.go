package httpapi

import (
	"bytes"
	"context"
	"net/http"

	"github.com/zmooth/zmooth/internal/platform/bulk"
	"github.com/zmooth/zmooth/internal/platform/httpx"
	networkapp "github.com/zmooth/zmooth/internal/services/network/app"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// recordRequest reads the path kind and, when withBody is set, the record
// body. A missing spec is only allowed on update.
func recordRequest(w http.ResponseWriter, r *http.Request, withBody, requireSpec bool) (network.Kind, networkapp.Input, bool) {
	kind, err := network.ParseKind(r.PathValue("kind"))
	if err != nil {
		httpx.WriteError(w, err)
		return "", networkapp.Input{}, false
	}
	if !withBody {
		return kind, networkapp.Input{}, true
	}
	var body recordInput
	if !decode(w, r, &body) {
		return "", networkapp.Input{}, false
	}
	in := networkapp.Input{Name: body.Name, Active: body.Active}
	raw := bytes.TrimSpace(body.Spec)
	if requireSpec || (len(raw) > 0 && !bytes.Equal(raw, []byte("null"))) {
		spec, err := network.DecodeSpec(kind, raw)
		if err != nil {
			httpx.WriteError(w, err)
			return "", networkapp.Input{}, false
		}
		in.Spec = spec
	}
	return kind, in, true
}

func recordQuery(r *http.Request, kind network.Kind) (storage.RecordQuery, error) {
	base, err := listQuery(r)
	if err != nil {
		return storage.RecordQuery{}, err
	}
	activeOnly, err := boolParam(r, "active_only", false)
	if err != nil {
		return storage.RecordQuery{}, err
	}
	return storage.RecordQuery{ListQuery: base, Kind: kind, ActiveOnly: activeOnly}, nil
}

func (h handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := recordRequest(w, r, false, false)
	if !ok {
		return
	}
	query, err := recordQuery(r, kind)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.Network.List(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writePage(w, page, recordToView)
}

func (h handlers) createRecord(w http.ResponseWriter, r *http.Request) {
	kind, in, ok := recordRequest(w, r, true, true)
	if !ok {
		return
	}
	record, err := h.Network.Create(r.Context(), kind, in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCreated(w, recordToView(record))
}

func (h handlers) getRecord(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := recordRequest(w, r, false, false)
	if !ok {
		return
	}
	record, err := h.Network.Get(r.Context(), kind, pathID(r, "recordID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, recordToView(record))
}

func (h handlers) updateRecord(w http.ResponseWriter, r *http.Request) {
	kind, in, ok := recordRequest(w, r, true, false)
	if !ok {
		return
	}
	record, err := h.Network.Update(r.Context(), kind, pathID(r, "recordID"), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, recordToView(record))
}

func (h handlers) deleteRecord(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := recordRequest(w, r, false, false)
	if !ok {
		return
	}
	if err := h.Network.Delete(r.Context(), kind, pathID(r, "recordID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handlers) syncRecord(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := recordRequest(w, r, false, false)
	if !ok {
		return
	}
	record, err := h.Network.Sync(r.Context(), kind, pathID(r, "recordID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeOK(w, recordToView(record))
}

func (h handlers) bulkRecords(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := recordRequest(w, r, false, false)
	if !ok {
		return
	}
	h.serveBulk(w, r, bulkEndpoint{
		resource: string(kind),
		allowed:  networkapp.BulkActions,
		apply: func(ctx context.Context, action bulk.Action, ids []string) (int, error) {
			return h.Network.Bulk(ctx, kind, action, ids)
		},
		export: func(ctx context.Context, ids []string) ([]byte, error) {
			return h.Network.Export(ctx, storage.RecordQuery{ListQuery: storage.ListQuery{IDs: ids}, Kind: kind})
		},
	})
}

func (h handlers) exportRecords(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := recordRequest(w, r, false, false)
	if !ok {
		return
	}
	query, err := recordQuery(r, kind)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	body, err := h.Network.Export(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	writeCSV(w, string(kind), h, body)
}
