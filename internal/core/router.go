package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

// Router is the single entry point external collaborators call into. It
// wires the registry, presence tracker, delivery state machine, and
// conversation discovery together; transport handlers never touch those
// directly.
type Router struct {
	registry      *Registry
	presence      *Presence
	delivery      *Delivery
	conversations *Conversations
	users         store.UserStore
	messages      store.MessageStore

	log *zerolog.Logger
}

// NewRouter builds the dispatch facade over the core components.
func NewRouter(st store.Store, logger *zerolog.Logger) *Router {
	registry := NewRegistry(logger)
	conversations := NewConversations(st, st, logger)
	presence := NewPresence(st, conversations, registry, logger)
	delivery := NewDelivery(st, st, registry, presence, logger)

	return &Router{
		registry:      registry,
		presence:      presence,
		delivery:      delivery,
		conversations: conversations,
		users:         st,
		messages:      st,
		log:           logger,
	}
}

// Registry exposes the connection registry for transport-level send paths.
func (r *Router) Registry() *Registry { return r.registry }

// Connect registers a live connection. On the user's first handle it flips
// presence to active, bulk-acknowledges custody of pending messages, and
// notifies conversation partners. Presence and acknowledgment failures are
// logged but do not refuse the connection; registration failures do.
func (r *Router) Connect(ctx context.Context, tn tenant.ID, userID int64, conn Conn) error {
	first, err := r.registry.Register(tn, userID, conn)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := r.presence.HandleConnect(ctx, tn, userID); err != nil {
		r.log.Warn().Err(err).Str("tenant", tn.String()).Int64("user_id", userID).
			Msg("failed to mark user active on connect")
	}
	if _, err := r.delivery.MarkAllReceived(ctx, tn, userID); err != nil {
		r.log.Warn().Err(err).Str("tenant", tn.String()).Int64("user_id", userID).
			Msg("failed to acknowledge pending messages on connect")
	}
	return nil
}

// Disconnect removes a connection handle. Idempotent; triggered by the
// transport's own close or error signal. When the last handle goes, the
// user flips inactive and partners are notified offline.
func (r *Router) Disconnect(ctx context.Context, tn tenant.ID, connID string) {
	userID, last, ok := r.registry.Unregister(tn, connID)
	if !ok || !last {
		return
	}

	if err := r.presence.HandleDisconnect(ctx, tn, userID); err != nil {
		r.log.Warn().Err(err).Str("tenant", tn.String()).Int64("user_id", userID).
			Msg("failed to mark user inactive on disconnect")
	}
}

// SendMessage persists and fans out a new message.
func (r *Router) SendMessage(ctx context.Context, in SendInput) (*store.Message, error) {
	return r.delivery.Send(ctx, in)
}

// OpenThread returns the peer profile and the full ascending message
// history between viewer and peer. As a side effect it bulk-marks the
// peer's messages viewed and notifies the peer, so the returned history
// reflects the post-transition flags.
func (r *Router) OpenThread(ctx context.Context, tn tenant.ID, viewerID, peerID int64) (*store.User, []*store.Message, error) {
	peer, err := r.users.GetUserByID(ctx, tn, peerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, notFoundError("user not found", err)
		}
		return nil, nil, storageError("look up peer", err)
	}

	if _, err := r.delivery.MarkThreadViewed(ctx, tn, viewerID, peerID); err != nil {
		return nil, nil, err
	}

	messages, err := r.messages.ListThread(ctx, tn, viewerID, peerID)
	if err != nil {
		return nil, nil, storageError("load thread", err)
	}

	return peer, messages, nil
}

// MarkViewed bulk-marks the peer's messages viewed without loading the
// thread, for clients that already hold the history.
func (r *Router) MarkViewed(ctx context.Context, tn tenant.ID, viewerID, peerID int64) error {
	_, err := r.delivery.MarkThreadViewed(ctx, tn, viewerID, peerID)
	return err
}

// PartnerList returns the viewer's conversation summaries.
func (r *Router) PartnerList(ctx context.Context, tn tenant.ID, userID int64) ([]PartnerSummary, error) {
	return r.conversations.Summaries(ctx, tn, userID)
}

// DeleteMessage soft-deletes a message.
func (r *Router) DeleteMessage(ctx context.Context, tn tenant.ID, id int64) error {
	return r.delivery.DeleteMessage(ctx, tn, id)
}

// Typing relays an ephemeral typing signal to the target user's live
// handles. Never persisted, no delivery guarantee; a no-op when offline.
func (r *Router) Typing(ctx context.Context, tn tenant.ID, fromUserID, toUserID int64) {
	r.registry.SendToUser(ctx, tn, toUserID, EventTyping, TypingPayload{FromUserID: fromUserID, ToUserID: toUserID})
}

// StopTyping relays the matching stop signal.
func (r *Router) StopTyping(ctx context.Context, tn tenant.ID, fromUserID, toUserID int64) {
	r.registry.SendToUser(ctx, tn, toUserID, EventStopTyping, TypingPayload{FromUserID: fromUserID, ToUserID: toUserID})
}
