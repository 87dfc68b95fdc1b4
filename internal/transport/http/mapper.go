package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sourcefile/pingline-server/internal/core"
	"github.com/sourcefile/pingline-server/internal/store"
)

// UserResponse represents a user in API responses. The password hash never
// leaves the store layer.
type UserResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Avatar     string `json:"avatar,omitempty"`
	IsActive   bool   `json:"isActive"`
	LastActive string `json:"lastActive,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         int64             `json:"id"`
	SenderID   int64             `json:"senderId"`
	ReceiverID int64             `json:"receiverId"`
	Message    string            `json:"message"`
	Kind       string            `json:"type"`
	Attachment *store.Attachment `json:"data,omitempty"`
	IsReceived bool              `json:"isReceived"`
	IsViewed   bool              `json:"isViewed"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// LastMessageResponse is the truncated preview carried by partner summaries.
type LastMessageResponse struct {
	Message   string    `json:"message"`
	Kind      string    `json:"type"`
	SenderID  int64     `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PartnerSummaryResponse is one entry of the conversation list.
type PartnerSummaryResponse struct {
	User        UserResponse         `json:"user"`
	LastMessage *LastMessageResponse `json:"lastMessage,omitempty"`
	UnreadCount int                  `json:"unreadCount"`
}

func toUserResponse(u *store.User) UserResponse {
	resp := UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		Avatar:   u.Avatar,
		IsActive: u.IsActive,
	}
	if u.LastActive != nil {
		resp.LastActive = relativeTime(*u.LastActive, time.Now())
	}
	return resp
}

func toMessageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Message:    m.Body,
		Kind:       string(m.Kind),
		Attachment: m.Attachment,
		IsReceived: m.IsReceived,
		IsViewed:   m.IsViewed,
		CreatedAt:  m.CreatedAt,
	}
}

func toMessageResponses(msgs []*store.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toPartnerSummaryResponse(s core.PartnerSummary) PartnerSummaryResponse {
	resp := PartnerSummaryResponse{
		User:        toUserResponse(s.User),
		UnreadCount: s.UnreadCount,
	}
	if s.LastMessage != nil {
		resp.LastMessage = &LastMessageResponse{
			Message:   s.LastMessage.Body,
			Kind:      string(s.LastMessage.Kind),
			SenderID:  s.LastMessage.SenderID,
			CreatedAt: s.LastMessage.CreatedAt,
		}
	}
	return resp
}

// relativeTime renders a coarse human-readable distance between then and
// now, for last-seen labels.
func relativeTime(then, now time.Time) string {
	d := now.Sub(then)
	switch {
	case d < time.Minute:
		return "just now"
	case d < 2*time.Minute:
		return "a minute ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 2*time.Hour:
		return "an hour ago"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "a day ago"
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	default:
		return then.Format("Jan 2, 2006")
	}
}

// statusForError maps domain error kinds onto HTTP status codes.
func statusForError(err error) (int, string) {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest, err.Error()
	case core.KindTenantMissing:
		return http.StatusBadRequest, "missing tenant"
	case core.KindNotFound:
		return http.StatusNotFound, err.Error()
	case core.KindAuthentication:
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
