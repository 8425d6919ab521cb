package model

import (
	"time"
)

// Activation counter sentinels. Anything below UnlimitedActivations is
// treated as exhausted.
const (
	UnlimitedActivations = -1
	NoActivations        = 0
)

// Key represents a license credential bound to an application.
// The token is only unique within its application; hwid and device_name
// stay null until the key is activated for the first time.
type Key struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	AppID          string     `json:"appId"`
	Token          string     `json:"token"`
	Description    *string    `json:"description,omitempty"`
	HWID           *string    `json:"hwid,omitempty"`
	DeviceName     *string    `json:"deviceName,omitempty"`
	Activations    int        `json:"activations"`
	Active         bool       `json:"active"`
	LastCheck      *time.Time `json:"lastCheck,omitempty"`
	LastActivation *time.Time `json:"lastActivation,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CanActivate reports whether the key still has activation budget.
// A corrupt counter below -1 counts as exhausted.
func (k *Key) CanActivate() bool {
	return k.Activations == UnlimitedActivations || k.Activations > 0
}
