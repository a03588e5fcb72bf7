// Package registry maps live connections to their declared identity.
// It is the single owner of that mapping; every other component looks
// identities up by connection id and treats a miss as a silent no-op.
package registry

import (
	"sync"

	"github.com/hyeonwoo/partyroom-backend/internal"
)

type Registry struct {
	mu    sync.RWMutex
	conns map[string]internal.Identity
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]internal.Identity),
	}
}

// Register records the identity a connection declared on join. A second
// register for the same connection overwrites the first.
func (r *Registry) Register(id internal.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id.ConnID] = id
}

// Lookup returns the identity for connID. ok is false for unknown ids;
// callers skip the action rather than failing.
func (r *Registry) Lookup(connID string) (internal.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.conns[connID]
	return id, ok
}

// Unregister removes the connection. Unknown ids are ignored.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// ListRoom returns the identities currently registered in a room, in no
// particular order. Used for user lists and moderation quorum counts.
func (r *Registry) ListRoom(room string) []internal.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []internal.Identity
	for _, id := range r.conns {
		if id.RoomName == room {
			out = append(out, id)
		}
	}
	return out
}

// FindByName returns the connection id of the user with displayName in
// room, if any. Moderation resolves kick targets through this.
func (r *Registry) FindByName(room, displayName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID, id := range r.conns {
		if id.RoomName == room && id.DisplayName == displayName {
			return connID, true
		}
	}
	return "", false
}
