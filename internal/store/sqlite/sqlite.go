package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

// Schema holds the DDL applied on startup. Kept idempotent so repeated
// starts against the same file are safe.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant        TEXT NOT NULL,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	phone         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT 0,
	last_active   DATETIME,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (tenant, email),
	UNIQUE (tenant, phone)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant          TEXT NOT NULL,
	sender_id       INTEGER NOT NULL,
	receiver_id     INTEGER NOT NULL,
	body            TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL,
	attachment_path TEXT,
	attachment_name TEXT,
	attachment_size INTEGER,
	is_received     BOOLEAN NOT NULL DEFAULT 0,
	is_viewed       BOOLEAN NOT NULL DEFAULT 0,
	is_deleted      BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (sender_id) REFERENCES users(id),
	FOREIGN KEY (receiver_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_pair
	ON messages(tenant, sender_id, receiver_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_receiver_unviewed
	ON messages(tenant, receiver_id, is_viewed);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file. opTimeout bounds every
// storage call; zero disables the bound.
func New(dbPath string, opTimeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, timeout: opTimeout}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function
// instead of the default schema. Useful for tests.
func NewWithSetup(dbPath string, opTimeout time.Duration, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, timeout: opTimeout}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// opCtx bounds a storage call with the configured timeout.
func (s *SQLiteStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ==== UserStore implementation ====

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, tn tenant.ID, name, email, phone, passwordHash string) (*store.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		INSERT INTO users (tenant, name, email, phone, password_hash)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, string(tn), name, email, phone, passwordHash)
	if err != nil {
		if dup := duplicateField(err); dup != "" {
			return nil, &store.DuplicateError{Field: dup}
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, tn, id)
}

// duplicateField maps a sqlite unique-constraint error to the offending
// column, or returns "" for other errors.
func duplicateField(err error) string {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) || sqErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return ""
	}
	msg := sqErr.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return "email"
	case strings.Contains(msg, "users.phone"):
		return "phone"
	default:
		return "identity"
	}
}

const userColumns = `id, tenant, name, email, phone, password_hash, avatar, is_active, last_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var (
		user       store.User
		tn         string
		lastActive sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&tn,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.Avatar,
		&user.IsActive,
		&lastActive,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Tenant = tenant.ID(tn)
	if lastActive.Valid {
		user.LastActive = &lastActive.Time
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, tn tenant.ID, id int64) (*store.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE tenant = ? AND id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, string(tn), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, tn tenant.ID, email string) (*store.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE tenant = ? AND email = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, string(tn), email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers lists all users in the tenant except excludeID.
func (s *SQLiteStore) ListUsers(ctx context.Context, tn tenant.ID, excludeID int64) ([]*store.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE tenant = ? AND id != ? ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query, string(tn), excludeID)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// SetUserActivity flips the presence flag and stamps last_active.
func (s *SQLiteStore) SetUserActivity(ctx context.Context, tn tenant.ID, id int64, active bool, at time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `UPDATE users SET is_active = ?, last_active = ? WHERE tenant = ? AND id = ?`
	result, err := s.db.ExecContext(ctx, query, active, at, string(tn), id)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// TouchLastActive refreshes last_active without changing the presence flag.
func (s *SQLiteStore) TouchLastActive(ctx context.Context, tn tenant.ID, id int64, at time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `UPDATE users SET last_active = ? WHERE tenant = ? AND id = ?`
	if _, err := s.db.ExecContext(ctx, query, at, string(tn), id); err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}

// UpdateProfile overwrites the given profile fields. Empty strings leave
// the current value in place.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, tn tenant.ID, id int64, name, email, phone, avatar string) (*store.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		UPDATE users SET
			name   = COALESCE(NULLIF(?, ''), name),
			email  = COALESCE(NULLIF(?, ''), email),
			phone  = COALESCE(NULLIF(?, ''), phone),
			avatar = COALESCE(NULLIF(?, ''), avatar)
		WHERE tenant = ? AND id = ?
	`
	result, err := s.db.ExecContext(ctx, query, name, email, phone, avatar, string(tn), id)
	if err != nil {
		if dup := duplicateField(err); dup != "" {
			return nil, &store.DuplicateError{Field: dup}
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}

	return s.GetUserByID(ctx, tn, id)
}

// ==== MessageStore implementation ====

const messageColumns = `id, tenant, sender_id, receiver_id, body, kind,
	attachment_path, attachment_name, attachment_size,
	is_received, is_viewed, is_deleted, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var (
		msg      store.Message
		tn       string
		kind     string
		attPath  sql.NullString
		attName  sql.NullString
		attSize  sql.NullInt64
	)
	err := row.Scan(
		&msg.ID,
		&tn,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Body,
		&kind,
		&attPath,
		&attName,
		&attSize,
		&msg.IsReceived,
		&msg.IsViewed,
		&msg.IsDeleted,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Tenant = tenant.ID(tn)
	msg.Kind = store.MessageKind(kind)
	if attPath.Valid {
		msg.Attachment = &store.Attachment{
			Path:         attPath.String,
			OriginalName: attName.String,
			ByteSize:     attSize.Int64,
		}
	}
	return &msg, nil
}

// SaveMessage persists a message and fills in its ID.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var attPath, attName any
	var attSize any
	if msg.Attachment != nil {
		attPath = msg.Attachment.Path
		attName = msg.Attachment.OriginalName
		attSize = msg.Attachment.ByteSize
	}

	query := `
		INSERT INTO messages (tenant, sender_id, receiver_id, body, kind,
			attachment_path, attachment_name, attachment_size,
			is_received, is_viewed, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		string(msg.Tenant),
		msg.SenderID,
		msg.ReceiverID,
		msg.Body,
		string(msg.Kind),
		attPath,
		attName,
		attSize,
		msg.IsReceived,
		msg.IsViewed,
		msg.IsDeleted,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// GetMessageByID retrieves a message by ID.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, tn tenant.ID, id int64) (*store.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE tenant = ? AND id = ?`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, string(tn), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListThread returns non-deleted messages between two users, ascending by
// creation time.
func (s *SQLiteStore) ListThread(ctx context.Context, tn tenant.ID, userA, userB int64) ([]*store.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE tenant = ? AND is_deleted = 0
		  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(tn), userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// PartnerIDs returns the distinct users that userID has exchanged
// non-deleted messages with, excluding userID itself.
func (s *SQLiteStore) PartnerIDs(ctx context.Context, tn tenant.ID, userID int64) ([]int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT DISTINCT partner FROM (
			SELECT receiver_id AS partner FROM messages
			WHERE tenant = ? AND sender_id = ? AND is_deleted = 0
			UNION
			SELECT sender_id AS partner FROM messages
			WHERE tenant = ? AND receiver_id = ? AND is_deleted = 0
		)
		WHERE partner != ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(tn), userID, string(tn), userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query partners: %w", err)
	}
	defer rows.Close()

	var partners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners = append(partners, id)
	}

	return partners, rows.Err()
}

// LastMessageBetween returns the most recent non-deleted message between
// the pair.
func (s *SQLiteStore) LastMessageBetween(ctx context.Context, tn tenant.ID, userA, userB int64) (*store.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE tenant = ? AND is_deleted = 0
		  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, string(tn), userA, userB, userB, userA))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no messages between %d and %d: %w", userA, userB, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query last message: %w", err)
	}
	return msg, nil
}

// CountUnread counts non-deleted messages from senderID to receiverID that
// have not been viewed.
func (s *SQLiteStore) CountUnread(ctx context.Context, tn tenant.ID, senderID, receiverID int64) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT COUNT(*) FROM messages
		WHERE tenant = ? AND sender_id = ? AND receiver_id = ?
		  AND is_viewed = 0 AND is_deleted = 0
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, string(tn), senderID, receiverID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkAllReceived sets received=true on every non-deleted message
// addressed to receiverID.
func (s *SQLiteStore) MarkAllReceived(ctx context.Context, tn tenant.ID, receiverID int64) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		UPDATE messages SET is_received = 1
		WHERE tenant = ? AND receiver_id = ? AND is_received = 0 AND is_deleted = 0
	`
	result, err := s.db.ExecContext(ctx, query, string(tn), receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark received: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// MarkThreadViewed sets viewed=true and received=true on every non-deleted
// message from senderID to viewerID.
func (s *SQLiteStore) MarkThreadViewed(ctx context.Context, tn tenant.ID, senderID, viewerID int64) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		UPDATE messages SET is_viewed = 1, is_received = 1
		WHERE tenant = ? AND sender_id = ? AND receiver_id = ?
		  AND is_viewed = 0 AND is_deleted = 0
	`
	result, err := s.db.ExecContext(ctx, query, string(tn), senderID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("mark viewed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// SoftDeleteMessage flags a message deleted.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, tn tenant.ID, id int64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `UPDATE messages SET is_deleted = 1 WHERE tenant = ? AND id = ?`
	result, err := s.db.ExecContext(ctx, query, string(tn), id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
