package core

import (
	"context"
	"testing"

	"github.com/sourcefile/pingline-server/internal/store"
)

func newRouterFixture() (*fakeStore, *Router) {
	st := newFakeStore()
	return st, NewRouter(st, testLogger())
}

func TestRouterMultiDevicePresence(t *testing.T) {
	st, router := newRouterFixture()
	ctx := context.Background()

	alice := st.addUser("acme", "Alice")
	bob := st.addUser("acme", "Bob")
	st.addMessage("acme", alice.ID, bob.ID, "hi")

	bobConn := newFakeConn("bob-1")
	if err := router.Connect(ctx, "acme", bob.ID, bobConn); err != nil {
		t.Fatalf("connect bob: %v", err)
	}

	// Alice connects on two devices.
	if err := router.Connect(ctx, "acme", alice.ID, newFakeConn("alice-phone")); err != nil {
		t.Fatalf("connect phone: %v", err)
	}
	if err := router.Connect(ctx, "acme", alice.ID, newFakeConn("alice-laptop")); err != nil {
		t.Fatalf("connect laptop: %v", err)
	}

	if bobConn.countOf(EventOnline) != 1 {
		t.Fatalf("second device must not re-announce online, got %d events", bobConn.countOf(EventOnline))
	}

	// Dropping one device keeps the user active.
	router.Disconnect(ctx, "acme", "alice-phone")
	got, _ := st.GetUserByID(ctx, "acme", alice.ID)
	if !got.IsActive {
		t.Fatal("user must stay active while a device remains")
	}
	if bobConn.countOf(EventOffline) != 0 {
		t.Fatal("offline must not fire before the last handle drops")
	}

	// Dropping the last device fires exactly one offline per partner.
	router.Disconnect(ctx, "acme", "alice-laptop")
	got, _ = st.GetUserByID(ctx, "acme", alice.ID)
	if got.IsActive {
		t.Fatal("user must flip inactive on last disconnect")
	}
	if bobConn.countOf(EventOffline) != 1 {
		t.Fatalf("expected exactly one offline event, got %d", bobConn.countOf(EventOffline))
	}

	// Disconnecting an already-gone handle is a no-op.
	router.Disconnect(ctx, "acme", "alice-laptop")
	if bobConn.countOf(EventOffline) != 1 {
		t.Fatal("repeated disconnect must not refire offline")
	}
}

func TestRouterConnectAcknowledgesPendingMessages(t *testing.T) {
	st, router := newRouterFixture()
	ctx := context.Background()

	alice := st.addUser("acme", "Alice")
	bob := st.addUser("acme", "Bob")
	m := st.addMessage("acme", alice.ID, bob.ID, "while you were away")

	if err := router.Connect(ctx, "acme", bob.ID, newFakeConn("bob-1")); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if !st.message(m.ID).IsReceived {
		t.Fatal("connect must bulk-acknowledge pending messages")
	}
	if st.message(m.ID).IsViewed {
		t.Fatal("connect must not mark messages viewed")
	}
}

func TestRouterRefusesAnonymousConnection(t *testing.T) {
	_, router := newRouterFixture()

	err := router.Connect(context.Background(), "acme", 0, newFakeConn("c1"))
	if KindOf(err) != KindAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestRouterTypingRelay(t *testing.T) {
	st, router := newRouterFixture()
	ctx := context.Background()

	alice := st.addUser("acme", "Alice")
	bob := st.addUser("acme", "Bob")

	bobConn := newFakeConn("bob-1")
	if err := router.Connect(ctx, "acme", bob.ID, bobConn); err != nil {
		t.Fatalf("connect: %v", err)
	}

	router.Typing(ctx, "acme", alice.ID, bob.ID)
	router.StopTyping(ctx, "acme", alice.ID, bob.ID)
	// Offline target is a silent no-op.
	router.Typing(ctx, "acme", bob.ID, alice.ID)

	if bobConn.countOf(EventTyping) != 1 || bobConn.countOf(EventStopTyping) != 1 {
		t.Fatalf("unexpected relay counts: typing=%d stop=%d",
			bobConn.countOf(EventTyping), bobConn.countOf(EventStopTyping))
	}
}

// Full offline-message scenario: send while disconnected, connect, check
// unread, open thread, verify flags and the viewed notification.
func TestRouterOfflineMessageLifecycle(t *testing.T) {
	st, router := newRouterFixture()
	ctx := context.Background()

	u1 := st.addUser("acme", "U1")
	u2 := st.addUser("acme", "U2")

	u1Conn := newFakeConn("u1-1")
	if err := router.Connect(ctx, "acme", u1.ID, u1Conn); err != nil {
		t.Fatalf("connect u1: %v", err)
	}

	// U1 sends while U2 is disconnected.
	msg, err := router.SendMessage(ctx, SendInput{
		Tenant: "acme", SenderID: u1.ID, ReceiverID: u2.ID,
		Kind: store.KindText, Body: "hi",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if st.message(msg.ID).IsViewed {
		t.Fatal("stored message must start unviewed")
	}

	// U2 connects: partner list shows U1 with one unread.
	if err := router.Connect(ctx, "acme", u2.ID, newFakeConn("u2-1")); err != nil {
		t.Fatalf("connect u2: %v", err)
	}
	summaries, err := router.PartnerList(ctx, "acme", u2.ID)
	if err != nil {
		t.Fatalf("partner list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].User.ID != u1.ID || summaries[0].UnreadCount != 1 {
		t.Fatalf("unexpected partner list: %+v", summaries)
	}

	// U2 opens the thread with U1.
	peer, history, err := router.OpenThread(ctx, "acme", u2.ID, u1.ID)
	if err != nil {
		t.Fatalf("open thread: %v", err)
	}
	if peer.ID != u1.ID {
		t.Fatalf("unexpected peer: %+v", peer)
	}
	if len(history) != 1 || !history[0].IsViewed || !history[0].IsReceived {
		t.Fatalf("thread history should reflect post-transition flags: %+v", history)
	}

	// Unread resets to zero and U1 got exactly one viewed(U2) event.
	summaries, err = router.PartnerList(ctx, "acme", u2.ID)
	if err != nil {
		t.Fatalf("partner list: %v", err)
	}
	if summaries[0].UnreadCount != 0 {
		t.Fatalf("expected unread reset, got %d", summaries[0].UnreadCount)
	}
	if u1Conn.countOf(EventViewed) != 1 {
		t.Fatalf("expected one viewed event for the sender, got %d", u1Conn.countOf(EventViewed))
	}
}
