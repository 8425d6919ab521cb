package handler

import (
	"errors"
	"net/http"

	"github.com/keygate/keygate/internal/netutil"
	"github.com/keygate/keygate/internal/service"
)

// --- Create Key ---

type createKeyRequest struct {
	AppID       string  `json:"appId"`
	Token       *string `json:"token,omitempty"`
	Description *string `json:"description,omitempty"`
	Activations *int    `json:"activations,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// CreateKey creates a key in one of the user's applications. The token is
// generated when not supplied.
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.AppID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Application ID is required")
		return
	}

	key, err := h.keySvc.CreateKey(r.Context(), userID, username, service.CreateKeyRequest{
		AppID:       req.AppID,
		Token:       req.Token,
		Description: req.Description,
		Activations: req.Activations,
		Active:      req.Active,
		CallerIP:    netutil.ClassifiedIP(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Application not found")
		default:
			h.log.Error().Err(err).Msg("failed to create key")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create key")
		}
		return
	}

	writeJSON(w, http.StatusCreated, key)
}

// --- List Keys ---

// ListKeys returns all keys owned by the authenticated user
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	keys, err := h.keySvc.ListUserKeys(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list keys")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list keys")
		return
	}

	writeJSON(w, http.StatusOK, keys)
}

// --- Get Key ---

// GetKey returns a specific key
func (h *Handler) GetKey(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	key, err := h.keySvc.GetKey(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Key not found")
		default:
			h.log.Error().Err(err).Msg("failed to get key")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get key")
		}
		return
	}

	writeJSON(w, http.StatusOK, key)
}

// --- Update Key ---

type updateKeyRequest struct {
	Token       *string `json:"token,omitempty"`
	Description *string `json:"description,omitempty"`
	Activations *int    `json:"activations,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// UpdateKey modifies a key's management fields, including revocation via
// the active flag
func (h *Handler) UpdateKey(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	key, err := h.keySvc.UpdateKey(r.Context(), userID, username, r.PathValue("id"), service.UpdateKeyRequest{
		Token:       req.Token,
		Description: req.Description,
		Activations: req.Activations,
		Active:      req.Active,
		CallerIP:    netutil.ClassifiedIP(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Key not found")
		default:
			h.log.Error().Err(err).Msg("failed to update key")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update key")
		}
		return
	}

	writeJSON(w, http.StatusOK, key)
}

// --- Delete Key ---

// DeleteKey removes a key
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	err := h.keySvc.DeleteKey(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Key not found")
		default:
			h.log.Error().Err(err).Msg("failed to delete key")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete key")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Audit Log ---

// ListAuditLog returns the user's audit trail, newest first
func (h *Handler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	entries, err := h.keySvc.ListUserAuditLog(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list audit log")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list audit log")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
