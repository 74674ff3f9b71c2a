package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mandalnilabja/maptoken/internal/storage"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/shared"
)

// SetSecretRequest is the request body for PUT /api/admin/secrets/{name}.
type SetSecretRequest struct {
	Value string `json:"value"`
}

// ListSecrets handles GET /api/admin/secrets.
func (h *Handlers) ListSecrets(w http.ResponseWriter, r *http.Request) {
	list, err := h.Storage.ListSecrets()
	if err != nil {
		shared.WriteJSONError(w, "Failed to list secrets: "+err.Error(), http.StatusInternalServerError)
		return
	}

	previews := make([]*storage.SecretPreview, len(list))
	for i, s := range list {
		previews[i] = s.ToPreview()
	}

	shared.WriteJSON(w, map[string]any{"secrets": previews}, http.StatusOK)
}

// SetSecret handles PUT /api/admin/secrets/{name}.
func (h *Handlers) SetSecret(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		shared.WriteJSONError(w, "Secret name is required", http.StatusBadRequest)
		return
	}

	var req SetSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Value == "" {
		shared.WriteJSONError(w, "value is required", http.StatusBadRequest)
		return
	}

	secret := &storage.Secret{Name: name, Value: req.Value}
	if err := h.Storage.SetSecret(secret); errors.Is(err, storage.ErrInvalidInput) {
		shared.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	} else if err != nil {
		shared.WriteJSONError(w, "Failed to save secret: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.invalidateSecret(name)
	shared.WriteJSON(w, secret.ToPreview(), http.StatusOK)
}

// DeleteSecret handles DELETE /api/admin/secrets/{name}.
func (h *Handlers) DeleteSecret(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		shared.WriteJSONError(w, "Secret name is required", http.StatusBadRequest)
		return
	}

	if err := h.Storage.DeleteSecret(name); errors.Is(err, storage.ErrNotFound) {
		shared.WriteJSONError(w, "Secret not found", http.StatusNotFound)
		return
	} else if err != nil {
		shared.WriteJSONError(w, "Failed to delete secret: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.invalidateSecret(name)
	w.WriteHeader(http.StatusNoContent)
}
