package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// sentEvent records one push a fakeConn accepted.
type sentEvent struct {
	Event   string
	Payload any
}

// fakeConn implements Conn and records every event it takes.
type fakeConn struct {
	id   string
	fail bool

	mu     sync.Mutex
	events []sentEvent
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, event string, payload any) error {
	if c.fail {
		return errors.New("handle closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeConn) taken() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) countOf(event string) int {
	n := 0
	for _, ev := range c.taken() {
		if ev.Event == event {
			n++
		}
	}
	return n
}

// fakeStore is an in-memory store.Store with tenant scoping, good enough
// for exercising the core components without sqlite.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]*store.User
	messages map[int64]*store.Message
	nextUser int64
	nextMsg  int64

	failPartners bool
	failActivity bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]*store.User),
		messages: make(map[int64]*store.Message),
	}
}

func (f *fakeStore) addUser(tn tenant.ID, name string) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUser++
	u := &store.User{
		ID:        f.nextUser,
		Tenant:    tn,
		Name:      name,
		Email:     fmt.Sprintf("%s@%s.test", strings.ToLower(name), tn),
		Phone:     fmt.Sprintf("%s-%d", tn, f.nextUser),
		CreatedAt: time.Now(),
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) addMessage(tn tenant.ID, from, to int64, body string) *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	m := &store.Message{
		ID:         f.nextMsg,
		Tenant:     tn,
		SenderID:   from,
		ReceiverID: to,
		Body:       body,
		Kind:       store.KindText,
		CreatedAt:  time.Now(),
	}
	f.messages[m.ID] = m
	return m
}

func (f *fakeStore) message(id int64) *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id]
}

// ==== UserStore ====

func (f *fakeStore) CreateUser(_ context.Context, tn tenant.ID, name, email, phone, passwordHash string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Tenant != tn {
			continue
		}
		if u.Email == email {
			return nil, &store.DuplicateError{Field: "email"}
		}
		if u.Phone == phone {
			return nil, &store.DuplicateError{Field: "phone"}
		}
	}
	f.nextUser++
	u := &store.User{
		ID: f.nextUser, Tenant: tn, Name: name, Email: email, Phone: phone,
		PasswordHash: passwordHash, CreatedAt: time.Now(),
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, tn tenant.ID, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Tenant != tn {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return u, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, tn tenant.ID, email string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Tenant == tn && u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
}

func (f *fakeStore) ListUsers(_ context.Context, tn tenant.ID, excludeID int64) ([]*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.User
	for _, u := range f.users {
		if u.Tenant == tn && u.ID != excludeID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) SetUserActivity(_ context.Context, tn tenant.ID, id int64, active bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failActivity {
		return errors.New("backend down")
	}
	u, ok := f.users[id]
	if !ok || u.Tenant != tn {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	u.IsActive = active
	stamp := at
	u.LastActive = &stamp
	return nil
}

func (f *fakeStore) TouchLastActive(_ context.Context, tn tenant.ID, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Tenant != tn {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	stamp := at
	u.LastActive = &stamp
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, tn tenant.ID, id int64, name, email, phone, avatar string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Tenant != tn {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	if name != "" {
		u.Name = name
	}
	if email != "" {
		u.Email = email
	}
	if phone != "" {
		u.Phone = phone
	}
	if avatar != "" {
		u.Avatar = avatar
	}
	return u, nil
}

// ==== MessageStore ====

func (f *fakeStore) SaveMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	msg.ID = f.nextMsg
	stored := *msg
	f.messages[msg.ID] = &stored
	return nil
}

func (f *fakeStore) GetMessageByID(_ context.Context, tn tenant.ID, id int64) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.Tenant != tn {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return m, nil
}

func (f *fakeStore) ListThread(_ context.Context, tn tenant.ID, userA, userB int64) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for id := int64(1); id <= f.nextMsg; id++ {
		m, ok := f.messages[id]
		if !ok || m.Tenant != tn || m.IsDeleted {
			continue
		}
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) PartnerIDs(_ context.Context, tn tenant.ID, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPartners {
		return nil, errors.New("backend down")
	}
	seen := make(map[int64]struct{})
	for _, m := range f.messages {
		if m.Tenant != tn || m.IsDeleted {
			continue
		}
		if m.SenderID == userID && m.ReceiverID != userID {
			seen[m.ReceiverID] = struct{}{}
		}
		if m.ReceiverID == userID && m.SenderID != userID {
			seen[m.SenderID] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStore) LastMessageBetween(_ context.Context, tn tenant.ID, userA, userB int64) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *store.Message
	for id := int64(1); id <= f.nextMsg; id++ {
		m, ok := f.messages[id]
		if !ok || m.Tenant != tn || m.IsDeleted {
			continue
		}
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			last = m
		}
	}
	if last == nil {
		return nil, fmt.Errorf("no messages: %w", store.ErrNotFound)
	}
	return last, nil
}

func (f *fakeStore) CountUnread(_ context.Context, tn tenant.ID, senderID, receiverID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.messages {
		if m.Tenant == tn && m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsViewed && !m.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkAllReceived(_ context.Context, tn tenant.ID, receiverID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected int64
	for _, m := range f.messages {
		if m.Tenant == tn && m.ReceiverID == receiverID && !m.IsReceived && !m.IsDeleted {
			m.IsReceived = true
			affected++
		}
	}
	return affected, nil
}

func (f *fakeStore) MarkThreadViewed(_ context.Context, tn tenant.ID, senderID, viewerID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected int64
	for _, m := range f.messages {
		if m.Tenant == tn && m.SenderID == senderID && m.ReceiverID == viewerID && !m.IsViewed && !m.IsDeleted {
			m.IsViewed = true
			m.IsReceived = true
			affected++
		}
	}
	return affected, nil
}

func (f *fakeStore) SoftDeleteMessage(_ context.Context, tn tenant.ID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.Tenant != tn {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	m.IsDeleted = true
	return nil
}

func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)
