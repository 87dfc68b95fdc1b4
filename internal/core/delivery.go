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

// Delivery advances messages through the sent -> received -> viewed
// progression. Each transition is a single storage write followed by a
// best-effort live notification; the write must succeed before anything is
// emitted, and notification failure never rolls the write back.
type Delivery struct {
	users    store.UserStore
	messages store.MessageStore
	registry *Registry
	presence *Presence

	log *zerolog.Logger
	now func() time.Time
}

// NewDelivery creates a delivery state machine.
func NewDelivery(users store.UserStore, messages store.MessageStore, registry *Registry, presence *Presence, logger *zerolog.Logger) *Delivery {
	return &Delivery{
		users:    users,
		messages: messages,
		registry: registry,
		presence: presence,
		log:      logger,
		now:      time.Now,
	}
}

// SendInput carries everything needed to create a message.
type SendInput struct {
	Tenant     tenant.ID
	SenderID   int64
	ReceiverID int64
	Kind       store.MessageKind
	Body       string
	Attachment *store.Attachment
}

// Send validates and persists a new message with received=false and
// viewed=false, refreshes the sender's activity, and attempts a live push
// to the receiver. A successful push does not set received; custody is
// acknowledged by the explicit bulk paths.
func (d *Delivery) Send(ctx context.Context, in SendInput) (*store.Message, error) {
	if in.Tenant == "" {
		return nil, tenantError("message carries no tenant")
	}
	if in.SenderID == in.ReceiverID {
		return nil, validationError("sender and receiver must differ")
	}
	if in.ReceiverID == 0 {
		return nil, validationError("receiver is required")
	}
	if !store.ValidKind(in.Kind) {
		return nil, validationError(fmt.Sprintf("unknown message kind %q", in.Kind))
	}
	if in.Kind == store.KindText && in.Body == "" {
		return nil, validationError("text message requires a body")
	}
	if in.Kind != store.KindText && in.Attachment == nil {
		return nil, validationError(fmt.Sprintf("%s message requires an attachment", in.Kind))
	}

	if _, err := d.users.GetUserByID(ctx, in.Tenant, in.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("receiver not found", err)
		}
		return nil, storageError("look up receiver", err)
	}

	msg := &store.Message{
		Tenant:     in.Tenant,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Body:       in.Body,
		Kind:       in.Kind,
		Attachment: in.Attachment,
		CreatedAt:  d.now(),
	}
	if err := d.messages.SaveMessage(ctx, msg); err != nil {
		return nil, storageError("persist message", err)
	}

	d.presence.Touch(ctx, in.Tenant, in.SenderID)

	if !d.registry.SendToUser(ctx, in.Tenant, in.ReceiverID, EventReceiveMessage, msg) {
		d.log.Debug().Str("tenant", in.Tenant.String()).
			Int64("receiver_id", in.ReceiverID).Int64("message_id", msg.ID).
			Msg("receiver offline, message awaits acknowledgment")
	}

	return msg, nil
}

// MarkThreadViewed bulk-marks every message from peerID to viewerID as
// viewed (and received). Idempotent: reapplying to already-viewed rows is
// a no-op and emits no duplicate notification. When at least one row
// transitioned, the peer is notified once that viewerID saw the thread.
func (d *Delivery) MarkThreadViewed(ctx context.Context, tn tenant.ID, viewerID, peerID int64) (int64, error) {
	affected, err := d.messages.MarkThreadViewed(ctx, tn, peerID, viewerID)
	if err != nil {
		return 0, storageError("mark thread viewed", err)
	}

	if affected > 0 {
		d.registry.SendToUser(ctx, tn, peerID, EventViewed, ViewedPayload{ViewerID: viewerID})
	}
	return affected, nil
}

// MarkAllReceived bulk-acknowledges custody of every message addressed to
// receiverID. This is the explicit acknowledgment path driven by the
// receiver's connection coming online.
func (d *Delivery) MarkAllReceived(ctx context.Context, tn tenant.ID, receiverID int64) (int64, error) {
	affected, err := d.messages.MarkAllReceived(ctx, tn, receiverID)
	if err != nil {
		return 0, storageError("mark messages received", err)
	}
	return affected, nil
}

// DeleteMessage flags a message deleted. The flag only ever moves
// false -> true.
func (d *Delivery) DeleteMessage(ctx context.Context, tn tenant.ID, id int64) error {
	if err := d.messages.SoftDeleteMessage(ctx, tn, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("message not found", err)
		}
		return storageError("delete message", err)
	}
	return nil
}
