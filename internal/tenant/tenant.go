package tenant

import (
	"errors"
	"strings"
)

// ErrMissing is returned when a request or connection carries no tenant identifier.
var ErrMissing = errors.New("tenant identifier missing")

// ID names one logical customer workspace. All storage access and live
// fan-out is partitioned by it.
type ID string

func (id ID) String() string { return string(id) }

// Resolver maps raw tenant identifiers from requests and handshakes to a
// validated ID. Operations without a tenant are rejected here, before any
// storage or registry access.
type Resolver struct{}

// NewResolver creates a tenant resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve validates a raw tenant identifier.
func (r *Resolver) Resolve(raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrMissing
	}
	return ID(trimmed), nil
}
