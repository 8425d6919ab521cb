package model

import (
	"time"
)

// Application represents a product that owns a set of license keys
type Application struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	MasterKey string    `json:"masterKey"` // shared secret authorizing bulk provisioning
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// OwnerUsername is populated by lookups that join the owning user,
	// used to attribute bulk-provisioned keys in the audit trail.
	OwnerUsername string `json:"-"`
}
