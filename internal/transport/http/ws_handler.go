package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sourcefile/pingline-server/internal/auth"
	"github.com/sourcefile/pingline-server/internal/core"
	"github.com/sourcefile/pingline-server/internal/proto"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

const wsWriteTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections, authenticates them, and bridges them
// into the connection registry. The handshake is refused before any registry
// insertion when the token is missing or invalid.
type WSHandler struct {
	router      *core.Router
	authService *auth.Service
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(router *core.Router, authService *auth.Service, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{router: router, authService: authService, log: logger}
}

// ServeHTTP handles GET /ws?token=...
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	claims, err := h.authService.ValidateToken(r.URL.Query().Get("token"))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake with invalid token")
		stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
		return
	}
	tn := claims.Tenant()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	wsc := &wsConn{id: uuid.NewString(), conn: conn}
	if err := h.router.Connect(ctx, tn, claims.UserID, wsc); err != nil {
		h.log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("ws connect refused")
		conn.Close(websocket.StatusPolicyViolation, "connect refused")
		return
	}
	defer func() {
		// The request context is gone by now; disconnect cleanup gets its own.
		dctx, dcancel := context.WithTimeout(context.Background(), wsWriteTimeout)
		defer dcancel()
		h.router.Disconnect(dctx, tn, wsc.ID())
	}()

	err = h.readLoop(ctx, conn, tn, claims.UserID)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, tn tenant.ID, userID int64) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		protoErr := h.dispatch(ctx, tn, userID, inbound)
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

// dispatch routes one inbound frame. It returns a protocol error to echo
// back, or nil when the frame was handled (or dropped as unrecognized noise
// would be an error too).
func (h *WSHandler) dispatch(ctx context.Context, tn tenant.ID, userID int64, inbound proto.Inbound) *proto.Error {
	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return &proto.Error{Code: "bad_request", Msg: "malformed send_message data"}
		}
		if _, err := h.router.SendMessage(ctx, core.SendInput{
			Tenant:     tn,
			SenderID:   userID,
			ReceiverID: data.ReceiverID,
			Kind:       store.KindText,
			Body:       data.Body,
		}); err != nil {
			return &proto.Error{Code: core.KindOf(err), Msg: err.Error()}
		}
		return nil
	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return &proto.Error{Code: "bad_request", Msg: "malformed typing data"}
		}
		h.router.Typing(ctx, tn, userID, data.ReceiverID)
		return nil
	case proto.InboundTypeStopTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return &proto.Error{Code: "bad_request", Msg: "malformed stop_typing data"}
		}
		h.router.StopTyping(ctx, tn, userID, data.ReceiverID)
		return nil
	case proto.InboundTypeViewed:
		var data proto.ViewedData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return &proto.Error{Code: "bad_request", Msg: "malformed viewed data"}
		}
		if err := h.router.MarkViewed(ctx, tn, userID, data.PeerID); err != nil {
			return &proto.Error{Code: core.KindOf(err), Msg: err.Error()}
		}
		return nil
	default:
		return &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

// wsConn adapts a websocket connection to the registry's handle interface.
// Writes are serialized; the registry may fan out from multiple goroutines.
type wsConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) ID() string { return w.id }

func (w *wsConn) Send(ctx context.Context, event string, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	return wsjson.Write(wctx, w.conn, proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: event,
		Data:  payload,
	})
}
