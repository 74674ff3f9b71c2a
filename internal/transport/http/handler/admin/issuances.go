package admin

import (
	"net/http"
	"strconv"

	"github.com/mandalnilabja/maptoken/internal/storage"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/shared"
)

// GetIssuances handles GET /api/admin/issuances.
func (h *Handlers) GetIssuances(w http.ResponseWriter, r *http.Request) {
	filter := parseIssuanceFilter(r)

	entries, err := h.Storage.GetIssuances(filter)
	if err != nil {
		shared.WriteJSONError(w, "Failed to get issuances: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*storage.Issuance{}
	}

	shared.WriteJSON(w, map[string]any{
		"issuances": entries,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	}, http.StatusOK)
}

// DeleteIssuances handles DELETE /api/admin/issuances.
func (h *Handlers) DeleteIssuances(w http.ResponseWriter, r *http.Request) {
	beforeDate := r.URL.Query().Get("before_date")
	if beforeDate == "" {
		shared.WriteJSONError(w, "before_date query parameter is required (format: YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	before, err := shared.ParseDate(beforeDate)
	if err != nil {
		shared.WriteJSONError(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	deleted, err := h.Storage.DeleteIssuances(before)
	if err != nil {
		shared.WriteJSONError(w, "Failed to delete issuances: "+err.Error(), http.StatusInternalServerError)
		return
	}

	shared.WriteJSON(w, map[string]any{
		"deleted_count": deleted,
		"before_date":   beforeDate,
	}, http.StatusOK)
}

// parseIssuanceFilter creates an IssuanceFilter from query parameters.
func parseIssuanceFilter(r *http.Request) storage.IssuanceFilter {
	q := r.URL.Query()
	filter := storage.IssuanceFilter{
		Limit: 50,
	}

	filter.Source = q.Get("source")
	if v := q.Get("success"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			filter.Success = &ok
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = min(limit, 1000)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if v := q.Get("start_date"); v != "" {
		if t, err := shared.ParseDate(v); err == nil {
			filter.StartDate = &t
		}
	}
	// end_date names the last day included.
	if v := q.Get("end_date"); v != "" {
		if t, err := shared.ParseDate(v); err == nil {
			end := t.AddDate(0, 0, 1)
			filter.EndDate = &end
		}
	}

	return filter
}
