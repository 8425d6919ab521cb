package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/logger"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/service"
)

// Test fakes for the validation endpoints. Only the methods the engine
// touches are implemented; the embedded interfaces cover the rest.

type fakeAppStore struct {
	repository.AppStore
	apps map[string]*model.Application
}

func (f *fakeAppStore) GetByID(_ context.Context, id string) (*model.Application, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return app, nil
}

func (f *fakeAppStore) GetByIDAndMasterKey(_ context.Context, id, masterKey string) (*model.Application, error) {
	app, ok := f.apps[id]
	if !ok || app.MasterKey != masterKey {
		return nil, repository.ErrNotFound
	}
	return app, nil
}

type fakeKeyStore struct {
	repository.KeyStore
	keys map[string]*model.Key
}

func (f *fakeKeyStore) WithTx(_ *sql.Tx) repository.KeyStore { return f }

func (f *fakeKeyStore) GetByID(_ context.Context, id string) (*model.Key, error) {
	key, ok := f.keys[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return key, nil
}

func (f *fakeKeyStore) GetByTokenApp(_ context.Context, token, appID string) (*model.Key, error) {
	for _, key := range f.keys {
		if key.Token == token && key.AppID == appID {
			return key, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeKeyStore) GetByTokenAppHWID(_ context.Context, token, appID, hwid string) (*model.Key, error) {
	for _, key := range f.keys {
		if key.Token == token && key.AppID == appID && key.HWID != nil && *key.HWID == hwid {
			return key, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeKeyStore) CreateBatch(_ context.Context, keys []*model.Key) error {
	for _, key := range keys {
		f.keys[key.ID] = key
	}
	return nil
}

func (f *fakeKeyStore) RecordCheck(_ context.Context, id string, deviceName *string, at time.Time) error {
	key, ok := f.keys[id]
	if !ok {
		return repository.ErrNotFound
	}
	if deviceName != nil {
		key.DeviceName = deviceName
	}
	key.LastCheck = &at
	return nil
}

func (f *fakeKeyStore) ConsumeActivation(_ context.Context, id string, hwid string, deviceName *string, at time.Time) (int, error) {
	key, ok := f.keys[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if !key.Active || (key.Activations != model.UnlimitedActivations && key.Activations <= 0) {
		return 0, repository.ErrNotFound
	}
	if key.Activations != model.UnlimitedActivations {
		key.Activations--
	}
	key.HWID = &hwid
	key.DeviceName = deviceName
	key.LastActivation = &at
	return key.Activations, nil
}

type fakeAuditStore struct {
	repository.AuditStore
	entries []model.AuditLog
}

func (f *fakeAuditStore) WithTx(_ *sql.Tx) repository.AuditStore { return f }

func (f *fakeAuditStore) Create(_ context.Context, entry *model.AuditLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditStore) CreateBatch(ctx context.Context, entries []*model.AuditLog) error {
	for _, entry := range entries {
		if err := f.Create(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

type fakeTransactor struct{}

func (fakeTransactor) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type licenseFixture struct {
	handler *Handler
	apps    *fakeAppStore
	keys    *fakeKeyStore
	audit   *fakeAuditStore
	app     *model.Application
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *licenseFixture {
	t.Helper()
	apps := &fakeAppStore{apps: make(map[string]*model.Application)}
	keys := &fakeKeyStore{keys: make(map[string]*model.Key)}
	audit := &fakeAuditStore{}

	app := &model.Application{
		ID:            uuid.New().String(),
		UserID:        uuid.New().String(),
		Name:          "Test App",
		MasterKey:     "SECRET123",
		OwnerUsername: "alice",
	}
	apps.apps[app.ID] = app

	log := logger.New("disabled", "json")
	licenseSvc := service.NewLicenseService(apps, keys, audit, fakeTransactor{}, log)
	h := New(nil, nil, log, nil, licenseSvc, nil, nil)

	return &licenseFixture{handler: h, apps: apps, keys: keys, audit: audit, app: app}
}

func (f *licenseFixture) addKey(mutate func(*model.Key)) *model.Key {
	key := &model.Key{
		ID:          uuid.New().String(),
		UserID:      f.app.UserID,
		AppID:       f.app.ID,
		Token:       "ABCD1234EFGH5678",
		Activations: model.UnlimitedActivations,
		Active:      true,
	}
	if mutate != nil {
		mutate(key)
	}
	f.keys.keys[key.ID] = key
	return key
}

func doCheck(h *Handler, params url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/check?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	h.APICheck(rec, req)
	return rec
}

func doActivate(h *Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/activate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.APIActivate(rec, req)
	return rec
}

func doBulkCreate(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/keys/bulk", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.APIBulkCreate(rec, req)
	return rec
}

func TestAPICheck(t *testing.T) {
	t.Run("valid bound key", func(t *testing.T) {
		f := newFixture(t)
		key := f.addKey(func(k *model.Key) { k.HWID = strPtr("HW-1") })

		rec := doCheck(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-1"},
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"result":"ok"}`, rec.Body.String())
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/api/check", nil)
		rec := httptest.NewRecorder()
		f.handler.APICheck(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Only GET allowed"}`, rec.Body.String())
	})

	t.Run("missing fields in order", func(t *testing.T) {
		f := newFixture(t)

		rec := doCheck(f.handler, url.Values{})
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"token not given"}`, rec.Body.String())

		rec = doCheck(f.handler, url.Values{"token": {"T"}})
		assert.JSONEq(t, `{"result":"failure","error":"app_id not given"}`, rec.Body.String())

		rec = doCheck(f.handler, url.Values{"token": {"T"}, "app_id": {"A"}})
		assert.JSONEq(t, `{"result":"failure","error":"hwid not given"}`, rec.Body.String())
	})

	t.Run("unknown key and hwid mismatch give the same response", func(t *testing.T) {
		f := newFixture(t)
		key := f.addKey(func(k *model.Key) { k.HWID = strPtr("HW-1") })

		unknown := doCheck(f.handler, url.Values{
			"token": {"NOPE"}, "app_id": {f.app.ID}, "hwid": {"HW-1"},
		})
		mismatch := doCheck(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-OTHER"},
		})

		assert.Equal(t, http.StatusNotFound, unknown.Code)
		assert.Equal(t, http.StatusNotFound, mismatch.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Invalid key"}`, unknown.Body.String())
		assert.Equal(t, unknown.Body.String(), mismatch.Body.String())
	})

	t.Run("inactive key", func(t *testing.T) {
		f := newFixture(t)
		key := f.addKey(func(k *model.Key) {
			k.HWID = strPtr("HW-1")
			k.Active = false
		})

		rec := doCheck(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-1"},
		})
		assert.Equal(t, http.StatusGone, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Key not active"}`, rec.Body.String())
	})
}

func TestAPIActivate(t *testing.T) {
	t.Run("successful activation reports remaining budget", func(t *testing.T) {
		f := newFixture(t)
		key := f.addKey(func(k *model.Key) { k.Activations = 3 })

		rec := doActivate(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-1"}, "device_name": {"Office PC"},
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"result":"ok","remaining_activations":2}`, rec.Body.String())
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/api/activate", nil)
		rec := httptest.NewRecorder()
		f.handler.APIActivate(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Only POST allowed"}`, rec.Body.String())
	})

	t.Run("missing fields in order", func(t *testing.T) {
		f := newFixture(t)

		rec := doActivate(f.handler, url.Values{})
		assert.JSONEq(t, `{"result":"failure","error":"token not given"}`, rec.Body.String())

		rec = doActivate(f.handler, url.Values{"token": {"T"}})
		assert.JSONEq(t, `{"result":"failure","error":"app_id not given"}`, rec.Body.String())

		rec = doActivate(f.handler, url.Values{"token": {"T"}, "app_id": {"A"}})
		assert.JSONEq(t, `{"result":"failure","error":"hwid not given"}`, rec.Body.String())
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t)

		rec := doActivate(f.handler, url.Values{
			"token": {"NOPE"}, "app_id": {f.app.ID}, "hwid": {"HW-1"},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Invalid token"}`, rec.Body.String())
	})

	t.Run("inactive key", func(t *testing.T) {
		f := newFixture(t)
		key := f.addKey(func(k *model.Key) { k.Active = false })

		rec := doActivate(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-1"},
		})
		assert.Equal(t, http.StatusGone, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Key not active"}`, rec.Body.String())
	})

	t.Run("key lifecycle with a single activation", func(t *testing.T) {
		f := newFixture(t)
		key := f.addKey(func(k *model.Key) { k.Activations = 1 })

		rec := doActivate(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-1"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"result":"ok","remaining_activations":0}`, rec.Body.String())

		// Budget spent: a second activation is refused.
		rec = doActivate(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-2"},
		})
		assert.Equal(t, http.StatusGone, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"No further activations allowed"}`, rec.Body.String())

		// Checks still pass on the bound device and nowhere else.
		rec = doCheck(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-1"},
		})
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doCheck(f.handler, url.Values{
			"token": {key.Token}, "app_id": {f.app.ID}, "hwid": {"HW-2"},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAPIBulkCreate(t *testing.T) {
	t.Run("creates the batch", func(t *testing.T) {
		f := newFixture(t)

		rec := doBulkCreate(f.handler, `{
			"app_id": "`+f.app.ID+`",
			"master_key": "SECRET123",
			"keys": [
				{"token": "TOKEN00000000001"},
				{"token": "TOKEN00000000002", "activations": 5, "active": false}
			]
		}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"result":"ok","created":2}`, rec.Body.String())
		assert.Len(t, f.keys.keys, 2)
		assert.Len(t, f.audit.entries, 2)
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/api/keys/bulk", nil)
		rec := httptest.NewRecorder()
		f.handler.APIBulkCreate(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Only POST allowed"}`, rec.Body.String())
	})

	t.Run("unparseable body", func(t *testing.T) {
		f := newFixture(t)

		rec := doBulkCreate(f.handler, `{not json`)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Error in JSON."}`, rec.Body.String())
	})

	t.Run("missing top-level fields in order", func(t *testing.T) {
		f := newFixture(t)

		rec := doBulkCreate(f.handler, `{}`)
		assert.JSONEq(t, `{"result":"failure","error":"app_id not given"}`, rec.Body.String())

		rec = doBulkCreate(f.handler, `{"app_id":"A"}`)
		assert.JSONEq(t, `{"result":"failure","error":"master_key not given"}`, rec.Body.String())

		rec = doBulkCreate(f.handler, `{"app_id":"A","master_key":"S"}`)
		assert.JSONEq(t, `{"result":"failure","error":"keys not given"}`, rec.Body.String())
	})

	t.Run("wrong master key persists nothing", func(t *testing.T) {
		f := newFixture(t)

		rec := doBulkCreate(f.handler, `{
			"app_id": "`+f.app.ID+`",
			"master_key": "WRONG",
			"keys": [{"token": "TOKEN00000000001"}]
		}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"Invalid token"}`, rec.Body.String())
		assert.Empty(t, f.keys.keys)
		assert.Empty(t, f.audit.entries)
	})

	t.Run("spec without token fails the whole batch", func(t *testing.T) {
		f := newFixture(t)

		rec := doBulkCreate(f.handler, `{
			"app_id": "`+f.app.ID+`",
			"master_key": "SECRET123",
			"keys": [{"token": "TOKEN00000000001"}, {"activations": 3}]
		}`)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.JSONEq(t, `{"result":"failure","error":"token not given"}`, rec.Body.String())
		assert.Empty(t, f.keys.keys)
		assert.Empty(t, f.audit.entries)
	})

	t.Run("unknown fields are tolerated", func(t *testing.T) {
		f := newFixture(t)

		rec := doBulkCreate(f.handler, `{
			"app_id": "`+f.app.ID+`",
			"master_key": "SECRET123",
			"keys": [{"token": "TOKEN00000000001", "color": "blue"}],
			"extra": true
		}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"result":"ok","created":1}`, rec.Body.String())
	})
}
