package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sourcefile/pingline-server/internal/blob"
	"github.com/sourcefile/pingline-server/internal/core"
	"github.com/sourcefile/pingline-server/internal/store"
)

// maxAttachmentBytes caps uploaded attachment size.
const maxAttachmentBytes = 25 << 20

// ChatHandlers provides HTTP handlers for messaging endpoints.
type ChatHandlers struct {
	router *core.Router
	store  store.Store
	blobs  *blob.Store
	log    *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(router *core.Router, st store.Store, blobs *blob.Store, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		router: router,
		store:  st,
		blobs:  blobs,
		log:    logger,
	}
}

// ThreadResponse represents a full conversation with one peer.
type ThreadResponse struct {
	User     UserResponse      `json:"user"`
	Messages []MessageResponse `json:"messages"`
}

// SendMessageRequest represents the JSON send request body. Multipart
// sends carry the same fields as form values plus a "file" part.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiverId" form:"receiverId" binding:"required"`
	Message    string `json:"message" form:"message"`
	Kind       string `json:"type" form:"type"`
}

// Home returns the caller's conversation list.
// GET /api/home
func (h *ChatHandlers) Home(c *gin.Context) {
	uid, tn, ok := identity(c, h.log)
	if !ok {
		return
	}

	summaries, err := h.router.PartnerList(c.Request.Context(), tn, uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to build conversation list")
		status, msg := statusForError(err)
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	response := make([]PartnerSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		response = append(response, toPartnerSummaryResponse(s))
	}

	c.JSON(http.StatusOK, response)
}

// Thread returns the history with one peer and, as a side effect, marks the
// peer's messages viewed.
// GET /api/chat?user_id=N
func (h *ChatHandlers) Thread(c *gin.Context) {
	uid, tn, ok := identity(c, h.log)
	if !ok {
		return
	}

	peerID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id query parameter is required"})
		return
	}
	if peerID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot open a thread with yourself"})
		return
	}

	peer, messages, err := h.router.OpenThread(c.Request.Context(), tn, uid, peerID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("peer_id", peerID).Msg("failed to open thread")
		status, msg := statusForError(err)
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	c.JSON(http.StatusOK, ThreadResponse{
		User:     toUserResponse(peer),
		Messages: toMessageResponses(messages),
	})
}

// SendMessage persists and fans out a new message. Accepts JSON for text
// sends and multipart/form-data when an attachment rides along.
// POST /api/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	uid, tn, ok := identity(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	var attachment *store.Attachment

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid multipart send request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err == nil {
			if fileHeader.Size > maxAttachmentBytes {
				c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "attachment too large"})
				return
			}
			f, err := fileHeader.Open()
			if err != nil {
				h.log.Error().Err(err).Msg("failed to open uploaded file")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
			attachment, err = h.blobs.Save(f, fileHeader.Filename)
			_ = f.Close()
			if err != nil {
				h.log.Error().Err(err).Msg("failed to store attachment")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid send request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	kind := store.MessageKind(req.Kind)
	if req.Kind == "" {
		kind = store.KindText
	}

	msg, err := h.router.SendMessage(c.Request.Context(), core.SendInput{
		Tenant:     tn,
		SenderID:   uid,
		ReceiverID: req.ReceiverID,
		Kind:       kind,
		Body:       req.Message,
		Attachment: attachment,
	})
	if err != nil {
		// A rejected send must not leave the uploaded blob behind.
		if attachment != nil {
			if rmErr := h.blobs.Remove(attachment.Path); rmErr != nil {
				h.log.Warn().Err(rmErr).Msg("failed to remove orphaned attachment")
			}
		}
		h.log.Debug().Err(err).Int64("sender_id", uid).Int64("receiver_id", req.ReceiverID).Msg("send rejected")
		status, msg := statusForError(err)
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	c.JSON(http.StatusCreated, toMessageResponse(msg))
}

// DeleteMessage soft-deletes one of the caller's messages.
// DELETE /api/messages/:id
func (h *ChatHandlers) DeleteMessage(c *gin.Context) {
	uid, tn, ok := identity(c, h.log)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	msg, err := h.store.GetMessageByID(c.Request.Context(), tn, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to look up message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if msg.SenderID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the sender can delete a message"})
		return
	}

	if err := h.router.DeleteMessage(c.Request.Context(), tn, id); err != nil {
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to delete message")
		status, msg := statusForError(err)
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	c.Status(http.StatusNoContent)
}

// Users returns the tenant's user directory, excluding the caller.
// GET /api/users
func (h *ChatHandlers) Users(c *gin.Context) {
	uid, tn, ok := identity(c, h.log)
	if !ok {
		return
	}

	users, err := h.store.ListUsers(c.Request.Context(), tn, uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, toUserResponse(u))
	}

	c.JSON(http.StatusOK, response)
}

// UpdateProfile overwrites the caller's profile fields. Multipart requests
// may carry an "avatar" file part.
// PUT /api/profile
func (h *ChatHandlers) UpdateProfile(c *gin.Context) {
	uid, tn, ok := identity(c, h.log)
	if !ok {
		return
	}

	var name, email, phone, avatar string
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		name = c.PostForm("name")
		email = c.PostForm("email")
		phone = c.PostForm("phone")

		if fileHeader, err := c.FormFile("avatar"); err == nil {
			if fileHeader.Size > maxAttachmentBytes {
				c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "avatar too large"})
				return
			}
			f, err := fileHeader.Open()
			if err != nil {
				h.log.Error().Err(err).Msg("failed to open uploaded avatar")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
			att, err := h.blobs.Save(f, fileHeader.Filename)
			_ = f.Close()
			if err != nil {
				h.log.Error().Err(err).Msg("failed to store avatar")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
			avatar = att.Path
		}
	} else {
		var req struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid profile request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		name, email, phone = req.Name, req.Email, req.Phone
	}

	user, err := h.store.UpdateProfile(c.Request.Context(), tn, uid, name, email, phone, avatar)
	if err != nil {
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "identity already in use", Field: dup.Field})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to update profile")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}
