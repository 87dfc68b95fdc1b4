package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

type userKey struct {
	tn     tenant.ID
	userID int64
}

// Registry tracks live connections per (tenant, user). It is the single
// shared mutable structure of the core; all access goes through its lock.
type Registry struct {
	mu     sync.RWMutex
	conns  map[userKey]map[string]Conn
	owners map[string]userKey

	log *zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[userKey]map[string]Conn),
		owners: make(map[string]userKey),
		log:    logger,
	}
}

// Register adds a connection handle for a user. It reports whether this is
// the user's first live handle. A missing user identity or tenant is a
// protocol error and is rejected before insertion.
func (r *Registry) Register(tn tenant.ID, userID int64, conn Conn) (first bool, err error) {
	if tn == "" {
		return false, tenantError("connection carries no tenant")
	}
	if userID == 0 {
		return false, authError("connection carries no user identity")
	}

	key := userKey{tn: tn, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[key]
	if !ok {
		set = make(map[string]Conn)
		r.conns[key] = set
	}
	first = len(set) == 0
	set[conn.ID()] = conn
	r.owners[conn.ID()] = key

	return first, nil
}

// Unregister removes a connection handle. It is idempotent: removing an
// absent handle is a no-op. It reports the owning user and whether the
// removed handle was the user's last.
func (r *Registry) Unregister(tn tenant.ID, connID string) (userID int64, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.owners[connID]
	if !ok || key.tn != tn {
		return 0, false, false
	}
	delete(r.owners, connID)

	set := r.conns[key]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, key)
		last = true
	}

	return key.userID, last, true
}

// HandlesFor returns a snapshot of the user's live handles. Empty when the
// user is offline.
func (r *Registry) HandlesFor(tn tenant.ID, userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userKey{tn: tn, userID: userID}]
	handles := make([]Conn, 0, len(set))
	for _, c := range set {
		handles = append(handles, c)
	}
	return handles
}

// SendToUser fans one event out to every live handle of the user,
// sequentially, in the caller's order. It reports whether at least one
// handle took the event; false simply means the peer is offline (or every
// handle failed), never an error. Per-handle failures are logged and do
// not abort the rest of the fan-out.
func (r *Registry) SendToUser(ctx context.Context, tn tenant.ID, userID int64, event string, payload any) bool {
	handles := r.HandlesFor(tn, userID)
	if len(handles) == 0 {
		return false
	}

	delivered := false
	for _, c := range handles {
		if err := c.Send(ctx, event, payload); err != nil {
			r.log.Warn().Err(err).
				Str("tenant", tn.String()).
				Int64("user_id", userID).
				Str("conn_id", c.ID()).
				Str("event", event).
				Msg("live push failed")
			continue
		}
		delivered = true
	}
	return delivered
}
