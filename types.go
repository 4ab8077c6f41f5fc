package edgestore

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a developer record as known by the
// remote management API.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Developer is a developer account on the remote management API. The record
// is addressable by two keys: Email (the primary, human-facing key) and
// DeveloperID (an opaque identifier assigned by the remote system, immutable
// for the lifetime of the record). The remote API is the system of record;
// anything cached locally is a performance optimization.
type Developer struct {
	// Email is the primary key. The remote system treats it as
	// case-insensitive, so it is normalized to lower case on the way in.
	Email string `json:"email"`

	// DeveloperID is assigned by the remote system on create and never
	// changes afterwards. Empty means the record has not been created yet.
	DeveloperID string `json:"developerId,omitempty"`

	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	UserName  string `json:"userName,omitempty"`

	Status Status `json:"status,omitempty"`

	Attributes map[string]string `json:"attributes,omitempty"`

	// OriginalEmail holds the previous email while a rename is in flight.
	// The update call addresses the remote record by it; a successful save
	// clears it.
	OriginalEmail string `json:"-"`

	// OwnerID references the local user account owning this record, if any.
	OwnerID *int64 `json:"ownerId,omitempty"`

	CreatedAt  time.Time `json:"createdAt,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt,omitempty"`
}

// EntityID returns the primary key used by the storage layer.
func (d *Developer) EntityID() string {
	return NormalizeEmail(d.Email)
}

// IsNew reports whether the record has yet to be created on the remote
// system.
func (d *Developer) IsNew() bool {
	return d.DeveloperID == ""
}

// SetEmail changes the email, remembering the current one in OriginalEmail
// so an update can still address the remote record.
func (d *Developer) SetEmail(email string) {
	if d.OriginalEmail == "" && d.Email != "" && !strings.EqualFold(d.Email, email) {
		d.OriginalEmail = NormalizeEmail(d.Email)
	}
	d.Email = NormalizeEmail(email)
}

// Event is broadcast over the invalidation channel whenever cache entries
// are evicted, so other replicas can drop their in-process tiers.
type Event struct {
	Kind      string    `json:"kind"`
	Keys      []string  `json:"keys,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
