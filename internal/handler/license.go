package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keygate/keygate/internal/netutil"
	"github.com/keygate/keygate/internal/service"
)

// The public validation API keeps the wire contract of the original
// license server: "result"/"error" bodies, 404 for every identity
// mismatch, 410 for revoked or exhausted keys and 405 for request-shape
// problems.

type apiFailure struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func writeAPIFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiFailure{Result: "failure", Error: message})
}

func writeFieldMissing(w http.ResponseWriter, field string) {
	writeAPIFailure(w, http.StatusMethodNotAllowed, field+" not given")
}

// APICheck handles the heartbeat endpoint. Required query parameters:
// token, app_id, hwid; optional: device_name.
func (h *Handler) APICheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIFailure(w, http.StatusMethodNotAllowed, "Only GET allowed")
		return
	}

	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		writeFieldMissing(w, "token")
		return
	}
	appID := q.Get("app_id")
	if appID == "" {
		writeFieldMissing(w, "app_id")
		return
	}
	hwid := q.Get("hwid")
	if hwid == "" {
		writeFieldMissing(w, "hwid")
		return
	}
	var deviceName *string
	if v := q.Get("device_name"); v != "" {
		deviceName = &v
	}

	err := h.licenseSvc.Check(r.Context(), service.CheckRequest{
		Token:      token,
		AppID:      appID,
		HWID:       hwid,
		DeviceName: deviceName,
		CallerIP:   netutil.ClassifiedIP(r),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
	case errors.Is(err, service.ErrNotFound):
		writeAPIFailure(w, http.StatusNotFound, "Invalid key")
	case errors.Is(err, service.ErrKeyInactive):
		writeAPIFailure(w, http.StatusGone, "Key not active")
	default:
		h.log.Error().Err(err).Msg("key check failed")
		writeAPIFailure(w, http.StatusInternalServerError, "Internal error")
	}
}

// APIActivate handles the binding endpoint. Required form fields: token,
// app_id, hwid; optional: device_name. A successful activation reports the
// remaining budget so clients can tell when they are on their last one.
func (h *Handler) APIActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIFailure(w, http.StatusMethodNotAllowed, "Only POST allowed")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeAPIFailure(w, http.StatusMethodNotAllowed, "Malformed form data")
		return
	}

	token := r.PostFormValue("token")
	if token == "" {
		writeFieldMissing(w, "token")
		return
	}
	appID := r.PostFormValue("app_id")
	if appID == "" {
		writeFieldMissing(w, "app_id")
		return
	}
	hwid := r.PostFormValue("hwid")
	if hwid == "" {
		writeFieldMissing(w, "hwid")
		return
	}
	var deviceName *string
	if vs, ok := r.PostForm["device_name"]; ok && len(vs) > 0 {
		deviceName = &vs[0]
	}

	remaining, err := h.licenseSvc.Activate(r.Context(), service.ActivateRequest{
		Token:      token,
		AppID:      appID,
		HWID:       hwid,
		DeviceName: deviceName,
		CallerIP:   netutil.ClassifiedIP(r),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"result":                "ok",
			"remaining_activations": remaining,
		})
	case errors.Is(err, service.ErrNotFound):
		writeAPIFailure(w, http.StatusNotFound, "Invalid token")
	case errors.Is(err, service.ErrKeyInactive):
		writeAPIFailure(w, http.StatusGone, "Key not active")
	case errors.Is(err, service.ErrActivationsExhausted):
		writeAPIFailure(w, http.StatusGone, "No further activations allowed")
	default:
		h.log.Error().Err(err).Msg("key activation failed")
		writeAPIFailure(w, http.StatusInternalServerError, "Internal error")
	}
}

type bulkKeySpec struct {
	Token       *string `json:"token"`
	Activations *int    `json:"activations"`
	Active      *bool   `json:"active"`
	Description *string `json:"description"`
}

type bulkCreateRequest struct {
	AppID     *string        `json:"app_id"`
	MasterKey *string        `json:"master_key"`
	Keys      *[]bulkKeySpec `json:"keys"`
}

// APIBulkCreate handles bulk key provisioning authorized by the
// application's master key. The batch is all-or-nothing.
func (h *Handler) APIBulkCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIFailure(w, http.StatusMethodNotAllowed, "Only POST allowed")
		return
	}

	// Lenient decode: the legacy contract only rejects bodies that fail to
	// parse, not unknown fields.
	var req bulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIFailure(w, http.StatusMethodNotAllowed, "Error in JSON.")
		return
	}
	if req.AppID == nil {
		writeFieldMissing(w, "app_id")
		return
	}
	if req.MasterKey == nil {
		writeFieldMissing(w, "master_key")
		return
	}
	if req.Keys == nil {
		writeFieldMissing(w, "keys")
		return
	}

	specs := make([]service.KeySpec, 0, len(*req.Keys))
	for _, k := range *req.Keys {
		spec := service.KeySpec{
			Activations: k.Activations,
			Active:      k.Active,
			Description: k.Description,
		}
		if k.Token != nil {
			spec.Token = *k.Token
		}
		specs = append(specs, spec)
	}

	created, err := h.licenseSvc.BulkCreate(r.Context(), service.BulkCreateRequest{
		AppID:     *req.AppID,
		MasterKey: *req.MasterKey,
		Specs:     specs,
		CallerIP:  netutil.ClassifiedIP(r),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"result":  "ok",
			"created": created,
		})
	case errors.Is(err, service.ErrTokenMissing):
		writeFieldMissing(w, "token")
	case errors.Is(err, service.ErrNotFound):
		writeAPIFailure(w, http.StatusNotFound, "Invalid token")
	default:
		h.log.Error().Err(err).Msg("bulk key creation failed")
		writeAPIFailure(w, http.StatusInternalServerError, "Internal error")
	}
}
