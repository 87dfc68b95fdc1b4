package core

import "context"

// Conn is one concrete live transport session. A user may hold several
// concurrently (multi-device); the registry fans out to all of them.
type Conn interface {
	// ID returns the unique connection handle identifier.
	ID() string

	// Send pushes one event to the session. Implementations must be safe
	// for sequential calls from the registry's fan-out loop.
	Send(ctx context.Context, event string, payload any) error
}
