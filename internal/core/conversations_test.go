package core

import (
	"context"
	"strings"
	"testing"
)

func TestPartnersExcludesSelfAndOtherTenants(t *testing.T) {
	st := newFakeStore()
	conversations := NewConversations(st, st, testLogger())
	ctx := context.Background()

	alice := st.addUser("acme", "Alice")
	bob := st.addUser("acme", "Bob")
	eve := st.addUser("globex", "Eve")

	st.addMessage("acme", alice.ID, bob.ID, "hi")
	st.addMessage("acme", bob.ID, alice.ID, "hey")
	st.addMessage("globex", eve.ID, eve.ID+100, "other tenant traffic")

	partners, err := conversations.Partners(ctx, "acme", alice.ID)
	if err != nil {
		t.Fatalf("partners: %v", err)
	}
	if len(partners) != 1 || partners[0] != bob.ID {
		t.Fatalf("expected only bob, got %v", partners)
	}
}

func TestPartnersIgnoresDeletedMessages(t *testing.T) {
	st := newFakeStore()
	conversations := NewConversations(st, st, testLogger())
	ctx := context.Background()

	alice := st.addUser("acme", "Alice")
	bob := st.addUser("acme", "Bob")
	m := st.addMessage("acme", alice.ID, bob.ID, "hi")
	m.IsDeleted = true

	partners, err := conversations.Partners(ctx, "acme", alice.ID)
	if err != nil {
		t.Fatalf("partners: %v", err)
	}
	if len(partners) != 0 {
		t.Fatalf("deleted messages must not establish a partnership, got %v", partners)
	}
}

func TestSummariesUnreadAndPreview(t *testing.T) {
	st := newFakeStore()
	conversations := NewConversations(st, st, testLogger())
	ctx := context.Background()

	alice := st.addUser("acme", "Alice")
	bob := st.addUser("acme", "Bob")

	st.addMessage("acme", bob.ID, alice.ID, "first")
	long := strings.Repeat("x", 120)
	st.addMessage("acme", bob.ID, alice.ID, long)

	summaries, err := conversations.Summaries(ctx, "acme", alice.ID)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(summaries))
	}

	s := summaries[0]
	if s.User.ID != bob.ID {
		t.Fatalf("unexpected partner: %+v", s.User)
	}
	if s.UnreadCount != 2 {
		t.Fatalf("expected 2 unread, got %d", s.UnreadCount)
	}
	if s.LastMessage == nil || len([]rune(s.LastMessage.Body)) != previewLength {
		t.Fatalf("expected truncated preview, got %+v", s.LastMessage)
	}
	if s.LastMessage.SenderID != bob.ID {
		t.Fatalf("preview should carry the sender, got %+v", s.LastMessage)
	}
}

func TestSummariesSkipsCrossTenantPartnerIDs(t *testing.T) {
	st := newFakeStore()
	conversations := NewConversations(st, st, testLogger())
	ctx := context.Background()

	alice := st.addUser("acme", "Alice")
	eve := st.addUser("globex", "Eve")

	// A corrupt row cross-references a user from another tenant.
	st.addMessage("acme", eve.ID, alice.ID, "should not surface")

	summaries, err := conversations.Summaries(ctx, "acme", alice.ID)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("cross-tenant partner leaked into summaries: %+v", summaries)
	}
}
