// Package rooms maintains the tenant room membership index for the realtime
// hub. The registry is the single owner of the connection-to-tenant relation;
// the hub and handlers mutate it only through these operations.
package rooms

import (
	"errors"
	"sync"
)

// ErrTenantRequired is returned by Join when the tenant ID is empty
var ErrTenantRequired = errors.New("tenant_id required")

// Conn is one live transport session as seen by the registry
type Conn interface {
	ID() string
}

// Registry is a bidirectional tenant/connection membership index. A
// connection belongs to at most one tenant room at a time; joining another
// room replaces the previous membership.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[Conn]struct{}
	tenants map[Conn]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[Conn]struct{}),
		tenants: make(map[Conn]string),
	}
}

// Join adds the connection to the tenant's room. Idempotent for repeat joins
// to the same tenant; a join while in a different room moves the connection.
func (r *Registry) Join(conn Conn, tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.tenants[conn]; ok {
		if current == tenantID {
			return nil
		}
		r.removeLocked(conn, current)
	}

	members, ok := r.rooms[tenantID]
	if !ok {
		members = make(map[Conn]struct{})
		r.rooms[tenantID] = members
	}
	members[conn] = struct{}{}
	r.tenants[conn] = tenantID
	return nil
}

// Leave removes the connection from the tenant's room. A no-op when the
// connection is not a member.
func (r *Registry) Leave(conn Conn, tenantID string) {
	if tenantID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tenants[conn] == tenantID {
		r.removeLocked(conn, tenantID)
	}
}

// RemoveConn removes the connection from every room it belongs to. Safe to
// call for connections that never joined.
func (r *Registry) RemoveConn(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tenantID, ok := r.tenants[conn]; ok {
		r.removeLocked(conn, tenantID)
	}
}

// removeLocked deletes a membership entry; caller holds the write lock. A
// drained room is deleted so zero members and absent tenant are equivalent.
func (r *Registry) removeLocked(conn Conn, tenantID string) {
	delete(r.tenants, conn)
	if members, ok := r.rooms[tenantID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, tenantID)
		}
	}
}

// MembersOf returns a snapshot of the tenant's current members. Membership
// changes after the call do not affect the returned slice.
func (r *Registry) MembersOf(tenantID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[tenantID]
	snapshot := make([]Conn, 0, len(members))
	for conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// All returns a snapshot of every connection across every room
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]Conn, 0, len(r.tenants))
	for conn := range r.tenants {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// TenantOf returns the room the connection currently belongs to, if any
func (r *Registry) TenantOf(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenantID, ok := r.tenants[conn]
	return tenantID, ok
}

// Count returns the member count for one tenant
func (r *Registry) Count(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[tenantID])
}

// CountAll returns the total number of joined connections
func (r *Registry) CountAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tenants)
}

// RoomCounts returns the member count per tenant
func (r *Registry) RoomCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.rooms))
	for tenantID, members := range r.rooms {
		counts[tenantID] = len(members)
	}
	return counts
}
