package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// In-memory stores used by the service tests. The key store guards its
// state with a mutex so ConsumeActivation behaves like the database's
// atomic conditional update under concurrent callers.

type mockAppStore struct {
	mu   sync.Mutex
	apps map[string]*model.Application
}

func newMockAppStore() *mockAppStore {
	return &mockAppStore{apps: make(map[string]*model.Application)}
}

func (m *mockAppStore) Create(_ context.Context, app *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *app
	m.apps[app.ID] = &cp
	return nil
}

func (m *mockAppStore) GetByID(_ context.Context, id string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *mockAppStore) GetByIDAndMasterKey(_ context.Context, id, masterKey string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.MasterKey != masterKey {
		return nil, repository.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *mockAppStore) GetByIDForUser(_ context.Context, id, userID string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *mockAppStore) ListByUser(_ context.Context, userID string) ([]model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var apps []model.Application
	for _, app := range m.apps {
		if app.UserID == userID {
			apps = append(apps, *app)
		}
	}
	return apps, nil
}

func (m *mockAppStore) Update(_ context.Context, app *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.apps[app.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Name = app.Name
	stored.MasterKey = app.MasterKey
	return nil
}

func (m *mockAppStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.apps, id)
	return nil
}

type mockKeyStore struct {
	mu   sync.Mutex
	keys map[string]*model.Key
}

func newMockKeyStore() *mockKeyStore {
	return &mockKeyStore{keys: make(map[string]*model.Key)}
}

func (m *mockKeyStore) WithTx(_ *sql.Tx) repository.KeyStore { return m }

func (m *mockKeyStore) Create(_ context.Context, key *model.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.ID] = &cp
	return nil
}

func (m *mockKeyStore) CreateBatch(ctx context.Context, keys []*model.Key) error {
	for _, key := range keys {
		if err := m.Create(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockKeyStore) GetByID(_ context.Context, id string) (*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

func (m *mockKeyStore) GetByIDForUser(_ context.Context, id, userID string) (*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok || key.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

func (m *mockKeyStore) GetByTokenApp(_ context.Context, token, appID string) (*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.Token == token && key.AppID == appID {
			cp := *key
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockKeyStore) GetByTokenAppHWID(_ context.Context, token, appID, hwid string) (*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.Token == token && key.AppID == appID && key.HWID != nil && *key.HWID == hwid {
			cp := *key
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockKeyStore) ListByUser(_ context.Context, userID string) ([]model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []model.Key
	for _, key := range m.keys {
		if key.UserID == userID {
			keys = append(keys, *key)
		}
	}
	return keys, nil
}

func (m *mockKeyStore) ListByApp(_ context.Context, appID string) ([]model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []model.Key
	for _, key := range m.keys {
		if key.AppID == appID {
			keys = append(keys, *key)
		}
	}
	return keys, nil
}

func (m *mockKeyStore) Update(_ context.Context, key *model.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.keys[key.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Token = key.Token
	stored.Description = key.Description
	stored.Activations = key.Activations
	stored.Active = key.Active
	return nil
}

func (m *mockKeyStore) RecordCheck(_ context.Context, id string, deviceName *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return repository.ErrNotFound
	}
	if deviceName != nil {
		key.DeviceName = deviceName
	}
	key.LastCheck = &at
	return nil
}

func (m *mockKeyStore) ConsumeActivation(_ context.Context, id string, hwid string, deviceName *string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	// Same guard as the SQL statement: active and budget left.
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

func (m *mockKeyStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, id)
	return nil
}

type mockAuditStore struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func newMockAuditStore() *mockAuditStore {
	return &mockAuditStore{}
}

func (m *mockAuditStore) WithTx(_ *sql.Tx) repository.AuditStore { return m }

func (m *mockAuditStore) Create(_ context.Context, entry *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAuditStore) CreateBatch(ctx context.Context, entries []*model.AuditLog) error {
	for _, entry := range entries {
		if err := m.Create(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockAuditStore) ListByUser(_ context.Context, userID string) ([]model.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []model.AuditLog
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			entries = append(entries, m.entries[i])
		}
	}
	return entries, nil
}

func (m *mockAuditStore) byEvent(event string) []model.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []model.AuditLog
	for _, entry := range m.entries {
		if entry.Event == event {
			entries = append(entries, entry)
		}
	}
	return entries
}

// mockTransactor runs the function directly; the mock stores commit
// immediately.
type mockTransactor struct{}

func (mockTransactor) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}
