package store

import (
	"context"
	"errors"
	"time"

	"github.com/sourcefile/pingline-server/internal/tenant"
)

// Sentinel errors returned by store implementations. Callers branch on
// these with errors.Is instead of inspecting backend error text.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate identity")
)

// DuplicateError reports a unique-constraint violation on user creation,
// naming the offending field.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return "duplicate " + e.Field
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// User represents a registered user inside one tenant.
type User struct {
	ID           int64
	Tenant       tenant.ID
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Avatar       string
	IsActive     bool
	LastActive   *time.Time
	CreatedAt    time.Time
}

// MessageKind classifies message bodies.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindDocument MessageKind = "document"
)

// ValidKind reports whether k is a known message kind.
func ValidKind(k MessageKind) bool {
	switch k {
	case KindText, KindImage, KindVideo, KindDocument:
		return true
	}
	return false
}

// Attachment describes an uploaded file referenced by a message. The blob
// store owns the bytes; the message records the reference verbatim.
type Attachment struct {
	Path         string `json:"filePath"`
	OriginalName string `json:"originalName"`
	ByteSize     int64  `json:"fileSize"`
}

// Message is a persisted 1:1 chat message. Sender, receiver, kind and body
// are immutable after creation; only the delivery flags and the soft-delete
// flag may change. The JSON shape is what live pushes carry, so the tenant
// never leaves the server.
type Message struct {
	ID         int64       `json:"id"`
	Tenant     tenant.ID   `json:"-"`
	SenderID   int64       `json:"senderId"`
	ReceiverID int64       `json:"receiverId"`
	Body       string      `json:"message"`
	Kind       MessageKind `json:"type"`
	Attachment *Attachment `json:"data,omitempty"`
	IsReceived bool        `json:"isReceived"`
	IsViewed   bool        `json:"isViewed"`
	IsDeleted  bool        `json:"isDeleted"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// UserStore handles user persistence. Every query is scoped to a tenant.
type UserStore interface {
	// CreateUser creates a new user. Email and phone are unique per tenant;
	// violations return a *DuplicateError naming the field.
	CreateUser(ctx context.Context, tn tenant.ID, name, email, phone, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, tn tenant.ID, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, tn tenant.ID, email string) (*User, error)

	// ListUsers lists all users in the tenant except excludeID.
	ListUsers(ctx context.Context, tn tenant.ID, excludeID int64) ([]*User, error)

	// SetUserActivity flips the presence flag and stamps last_active.
	SetUserActivity(ctx context.Context, tn tenant.ID, id int64, active bool, at time.Time) error

	// TouchLastActive refreshes last_active without changing the presence flag.
	TouchLastActive(ctx context.Context, tn tenant.ID, id int64, at time.Time) error

	// UpdateProfile overwrites the given profile fields. Empty strings leave
	// the current value in place.
	UpdateProfile(ctx context.Context, tn tenant.ID, id int64, name, email, phone, avatar string) (*User, error)
}

// MessageStore handles message persistence and the delivery-flag bulk
// updates that drive the delivery state machine.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessageByID retrieves a message by ID.
	GetMessageByID(ctx context.Context, tn tenant.ID, id int64) (*Message, error)

	// ListThread returns non-deleted messages between two users, ascending
	// by creation time.
	ListThread(ctx context.Context, tn tenant.ID, userA, userB int64) ([]*Message, error)

	// PartnerIDs returns the distinct users that userID has exchanged
	// non-deleted messages with, excluding userID itself.
	PartnerIDs(ctx context.Context, tn tenant.ID, userID int64) ([]int64, error)

	// LastMessageBetween returns the most recent non-deleted message between
	// the pair, or ErrNotFound when they have none.
	LastMessageBetween(ctx context.Context, tn tenant.ID, userA, userB int64) (*Message, error)

	// CountUnread counts non-deleted messages from senderID to receiverID
	// that have not been viewed.
	CountUnread(ctx context.Context, tn tenant.ID, senderID, receiverID int64) (int, error)

	// MarkAllReceived sets received=true on every non-deleted message
	// addressed to receiverID. Idempotent; returns rows transitioned.
	MarkAllReceived(ctx context.Context, tn tenant.ID, receiverID int64) (int64, error)

	// MarkThreadViewed sets viewed=true and received=true on every
	// non-deleted message from senderID to viewerID. Idempotent; returns
	// rows transitioned so callers can suppress duplicate notifications.
	MarkThreadViewed(ctx context.Context, tn tenant.ID, senderID, viewerID int64) (int64, error)

	// SoftDeleteMessage flags a message deleted. The flag is monotonic.
	SoftDeleteMessage(ctx context.Context, tn tenant.ID, id int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
