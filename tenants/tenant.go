package tenants

import (
	"time"
)

// DatabaseStatus tracks provisioning of the tenant's dedicated database.
type DatabaseStatus string

const (
	DatabasePending      DatabaseStatus = "PENDING"
	DatabaseProvisioning DatabaseStatus = "PROVISIONING"
	DatabaseReady        DatabaseStatus = "READY"
	DatabaseError        DatabaseStatus = "ERROR"
	DatabaseSuspended    DatabaseStatus = "SUSPENDED"
)

func (s DatabaseStatus) Valid() bool {
	switch s {
	case DatabasePending, DatabaseProvisioning, DatabaseReady, DatabaseError, DatabaseSuspended:
		return true
	}
	return false
}

// Status is the lifecycle of the tenant organisation itself.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusDeleted   Status = "DELETED"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended || s == StatusDeleted
}

// Tenant represents one customer organisation with its own dedicated database.
// The slug is the routing key and never changes once the tenant is registered.
type Tenant struct {
	ID             string               `json:"id"`
	Slug           string               `json:"slug"`
	Name           string               `json:"name"`
	Connection     ConnectionDescriptor `json:"connection"`
	DatabaseStatus DatabaseStatus       `json:"database_status"`
	Status         Status               `json:"status"`
	Limits         Limits               `json:"limits"` // Fallback ceilings when no license is attached
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Clone returns a deep copy so cached or returned tenants never alias repo state.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Descriptor is what a successful resolution hands to the rest of the gateway.
type Descriptor struct {
	TenantID   string
	Slug       string
	Name       string
	Connection ConnectionDescriptor
	Limits     Limits
}

func (t *Tenant) Descriptor() *Descriptor {
	return &Descriptor{
		TenantID:   t.ID,
		Slug:       t.Slug,
		Name:       t.Name,
		Connection: t.Connection,
		Limits:     t.Limits,
	}
}
