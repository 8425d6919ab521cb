package handler

import (
	"errors"
	"net/http"

	"github.com/keygate/keygate/internal/middleware"
	"github.com/keygate/keygate/internal/service"
)

// requireUser pulls the authenticated user out of the request context
func requireUser(w http.ResponseWriter, r *http.Request) (userID, username string, ok bool) {
	userID, _ = r.Context().Value(middleware.UserIDKey).(string)
	username, _ = r.Context().Value(middleware.UsernameKey).(string)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return "", "", false
	}
	return userID, username, true
}

// --- Create Application ---

type createAppRequest struct {
	Name string `json:"name"`
}

// CreateApp creates an application owned by the authenticated user
func (h *Handler) CreateApp(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createAppRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Application name is required")
		return
	}

	app, err := h.appSvc.CreateApp(r.Context(), userID, req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create application")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create application")
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

// --- List Applications ---

// ListApps returns all applications owned by the authenticated user
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	apps, err := h.appSvc.ListUserApps(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list applications")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list applications")
		return
	}

	writeJSON(w, http.StatusOK, apps)
}

// --- Get Application ---

// GetApp returns a specific application
func (h *Handler) GetApp(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	app, err := h.appSvc.GetApp(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Application not found")
		default:
			h.log.Error().Err(err).Msg("failed to get application")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get application")
		}
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// --- Update Application ---

type updateAppRequest struct {
	Name            *string `json:"name,omitempty"`
	RotateMasterKey bool    `json:"rotateMasterKey,omitempty"`
}

// UpdateApp updates an application's name or rotates its bulk secret
func (h *Handler) UpdateApp(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updateAppRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	app, err := h.appSvc.UpdateApp(r.Context(), userID, r.PathValue("id"), service.UpdateAppRequest{
		Name:            req.Name,
		RotateMasterKey: req.RotateMasterKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Application not found")
		default:
			h.log.Error().Err(err).Msg("failed to update application")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update application")
		}
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// --- Delete Application ---

// DeleteApp removes an application and all of its keys
func (h *Handler) DeleteApp(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	err := h.appSvc.DeleteApp(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Application not found")
		default:
			h.log.Error().Err(err).Msg("failed to delete application")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete application")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- List Application Keys ---

// ListAppKeys returns all keys in an application
func (h *Handler) ListAppKeys(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireUser(w, r)
	if !ok {
		return
	}

	keys, err := h.appSvc.ListAppKeys(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Application not found")
		default:
			h.log.Error().Err(err).Msg("failed to list application keys")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list application keys")
		}
		return
	}

	writeJSON(w, http.StatusOK, keys)
}
