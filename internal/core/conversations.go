package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

// previewLength bounds the last-message preview shown in partner lists.
const previewLength = 40

// LastMessage is a truncated preview of the most recent message between a
// pair of users.
type LastMessage struct {
	Body      string
	Kind      store.MessageKind
	SenderID  int64
	CreatedAt time.Time
}

// PartnerSummary is one entry of a user's conversation list.
type PartnerSummary struct {
	User        *store.User
	LastMessage *LastMessage
	UnreadCount int
}

// Conversations computes, per user, the set of peers they have exchanged
// messages with. The same set seeds the conversation list and the fan-out
// targets for presence events.
type Conversations struct {
	users    store.UserStore
	messages store.MessageStore

	log *zerolog.Logger
}

// NewConversations creates a conversation discovery component.
func NewConversations(users store.UserStore, messages store.MessageStore, logger *zerolog.Logger) *Conversations {
	return &Conversations{
		users:    users,
		messages: messages,
		log:      logger,
	}
}

// Partners returns the distinct users that userID has exchanged
// non-deleted messages with, excluding userID itself, tenant-scoped.
func (c *Conversations) Partners(ctx context.Context, tn tenant.ID, userID int64) ([]int64, error) {
	partners, err := c.messages.PartnerIDs(ctx, tn, userID)
	if err != nil {
		return nil, storageError("resolve conversation partners", fmt.Errorf("partner ids: %w", err))
	}
	return partners, nil
}

// Summaries builds the conversation list for userID: one entry per partner
// with profile, presence, last-message preview, and unread count. Partner
// ids whose user record does not resolve inside the tenant are skipped;
// a message row cross-referencing another tenant must never surface here.
func (c *Conversations) Summaries(ctx context.Context, tn tenant.ID, userID int64) ([]PartnerSummary, error) {
	partners, err := c.Partners(ctx, tn, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]PartnerSummary, 0, len(partners))
	for _, partnerID := range partners {
		user, err := c.users.GetUserByID(ctx, tn, partnerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.log.Warn().Str("tenant", tn.String()).Int64("partner_id", partnerID).
					Msg("partner id did not resolve inside tenant, skipping")
				continue
			}
			return nil, storageError("load partner profile", fmt.Errorf("get partner: %w", err))
		}

		summary := PartnerSummary{User: user}

		last, err := c.messages.LastMessageBetween(ctx, tn, userID, partnerID)
		switch {
		case err == nil:
			summary.LastMessage = &LastMessage{
				Body:      truncatePreview(last.Body),
				Kind:      last.Kind,
				SenderID:  last.SenderID,
				CreatedAt: last.CreatedAt,
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, storageError("load last message", fmt.Errorf("last message: %w", err))
		}

		unread, err := c.messages.CountUnread(ctx, tn, partnerID, userID)
		if err != nil {
			return nil, storageError("count unread", fmt.Errorf("count unread: %w", err))
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLength {
		return s
	}
	return string(runes[:previewLength])
}
