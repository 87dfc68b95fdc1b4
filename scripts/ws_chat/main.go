package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sourcefile/pingline-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT token from /api/login")
	peer := flag.Int64("peer", 0, "user id to chat with")
	flag.Parse()

	if *token == "" {
		return errors.New("a -token is required, log in over /api/login first")
	}
	if *peer == 0 {
		return errors.New("a -peer user id is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+*token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s, chatting with user %d\n", *addr, *peer)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *peer)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			fmt.Printf("server error [%s]: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case "receive_message":
			var evt struct {
				SenderID int64  `json:"senderId"`
				Message  string `json:"message"`
			}
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal receive_message: %v", err)
				continue
			}
			fmt.Printf("<%d> %s\n", evt.SenderID, evt.Message)
		case "online":
			fmt.Printf("* user %s is online\n", string(outbound.Data))
		case "offline":
			var evt struct {
				UserID int64 `json:"userId"`
			}
			if err := json.Unmarshal(outbound.Data, &evt); err == nil {
				fmt.Printf("* user %d went offline\n", evt.UserID)
			}
		case "typing":
			var evt struct {
				FromUserID int64 `json:"fromUserId"`
			}
			if err := json.Unmarshal(outbound.Data, &evt); err == nil {
				fmt.Printf("* user %d is typing...\n", evt.FromUserID)
			}
		case "stop_typing":
			// Quiet; the next message speaks for itself.
		case "viewed":
			var evt struct {
				ViewerID int64 `json:"viewerId"`
			}
			if err := json.Unmarshal(outbound.Data, &evt); err == nil {
				fmt.Printf("* user %d viewed your messages\n", evt.ViewerID)
			}
		default:
			fmt.Printf("event=%s data=%s\n", outbound.Event, string(outbound.Data))
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, peer int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{ReceiverID: peer, Body: text})
			if err != nil {
				log.Printf("marshal msg: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
