package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

// Presence maintains the active/inactive flag and last-active timestamp
// per user, and drives online/offline notifications to conversation
// partners. The flags live on the User record; presence events are
// notifications of transitions, not separate state.
type Presence struct {
	users         store.UserStore
	conversations *Conversations
	registry      *Registry

	log *zerolog.Logger
	now func() time.Time
}

// NewPresence creates a presence tracker.
func NewPresence(users store.UserStore, conversations *Conversations, registry *Registry, logger *zerolog.Logger) *Presence {
	return &Presence{
		users:         users,
		conversations: conversations,
		registry:      registry,
		log:           logger,
		now:           time.Now,
	}
}

// HandleConnect flips the user active and notifies conversation partners.
// Called once per user, on the first registered handle. The storage write
// completes before any notification goes out; partner-set resolution
// failure degrades to flag-update-only with a logged warning.
func (p *Presence) HandleConnect(ctx context.Context, tn tenant.ID, userID int64) error {
	at := p.now()
	if err := p.users.SetUserActivity(ctx, tn, userID, true, at); err != nil {
		return storageError("set user active", fmt.Errorf("set active: %w", err))
	}

	partners, err := p.conversations.Partners(ctx, tn, userID)
	if err != nil {
		p.log.Warn().Err(err).Str("tenant", tn.String()).Int64("user_id", userID).
			Msg("presence updated but partner set unresolved, skipping online fan-out")
		return nil
	}

	for _, partnerID := range partners {
		p.registry.SendToUser(ctx, tn, partnerID, EventOnline, userID)
	}
	return nil
}

// HandleDisconnect flips the user inactive and notifies conversation
// partners. Called once per user, when the last handle is removed. The
// partner set is resolved before the flag mutation.
func (p *Presence) HandleDisconnect(ctx context.Context, tn tenant.ID, userID int64) error {
	partners, partnersErr := p.conversations.Partners(ctx, tn, userID)

	at := p.now()
	if err := p.users.SetUserActivity(ctx, tn, userID, false, at); err != nil {
		return storageError("set user inactive", fmt.Errorf("set inactive: %w", err))
	}

	if partnersErr != nil {
		p.log.Warn().Err(partnersErr).Str("tenant", tn.String()).Int64("user_id", userID).
			Msg("presence updated but partner set unresolved, skipping offline fan-out")
		return nil
	}

	payload := OfflinePayload{UserID: userID, LastActive: at}
	for _, partnerID := range partners {
		p.registry.SendToUser(ctx, tn, partnerID, EventOffline, payload)
	}
	return nil
}

// Touch refreshes the user's last-active timestamp without changing the
// presence flag. Used on outbound sends.
func (p *Presence) Touch(ctx context.Context, tn tenant.ID, userID int64) {
	if err := p.users.TouchLastActive(ctx, tn, userID, p.now()); err != nil {
		p.log.Warn().Err(err).Str("tenant", tn.String()).Int64("user_id", userID).
			Msg("failed to refresh last active")
	}
}
