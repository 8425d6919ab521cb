package model

import "time"

// AuditLog represents an append-only record of a security-relevant event.
// App and key references are nullable so entries survive deletion of the
// entities they describe.
type AuditLog struct {
	ID          string    `json:"id"`
	AppID       *string   `json:"appId,omitempty"`
	KeyID       *string   `json:"keyId,omitempty"`
	UserID      string    `json:"userId"`
	Event       string    `json:"event"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Audit event constants
const (
	EventKeyCreate   = "KeyCreate"
	EventKeyModify   = "KeyModify"
	EventKeyCheck    = "KeyCheck"
	EventKeyActivate = "KeyActivate"
)
