package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	chatdomain "github.com/smallbiznis/toolhub/internal/chat/domain"
	"go.uber.org/zap"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = (wsPongWait * 9) / 10
	wsMaxReadSize = chatdomain.MaxContentLength + 1024
)

// wsFrame is both directions of the chat socket. The server sends
// "history", "message" and "error"; clients send "send".
type wsFrame struct {
	Type     string         `json:"type"`
	Content  string         `json:"content,omitempty"`
	Message  *messageFrame  `json:"message,omitempty"`
	Messages []messageFrame `json:"messages,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) write(frame wsFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(frame)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *Server) newUpgrader() websocket.Upgrader {
	allowed := s.cfg.CORSOrigins
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range allowed {
				if a == "*" || a == origin {
					return true
				}
			}
			return false
		},
	}
}

// ChatWebSocket is the bidirectional form of StreamChat: clients receive
// the same history and live messages and may post with "send" frames.
func (s *Server) ChatWebSocket(c *gin.Context) {
	conv, ok := s.loadConversation(c)
	if !ok {
		return
	}

	sub, err := s.chatSvc.Subscribe(c.Request.Context(), conv.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer sub.Close()

	upgrader := s.newUpgrader()
	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := s.log.With(zap.String("conversation_id", conv.ID.String()))

	history, err := s.chatSvc.ListMessages(ctx, conv.ID)
	if err != nil {
		_ = conn.write(wsFrame{Type: "error", Error: "history_unavailable"})
		return
	}
	seen := make(map[string]struct{}, len(history))
	for _, msg := range history {
		seen[msg.ID.String()] = struct{}{}
	}
	if err := conn.write(wsFrame{Type: "history", Messages: framesFromMessages(history)}); err != nil {
		return
	}

	s.autoReply(conv.ID)

	go func() {
		defer cancel()
		s.readChatFrames(ctx, conn, conv, log)
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case change, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, ok := s.frameForChange(ctx, conv.ID, change)
			if !ok {
				continue
			}
			if _, dup := seen[frame.ID.String()]; dup {
				continue
			}
			seen[frame.ID.String()] = struct{}{}
			if err := conn.write(wsFrame{Type: "message", Message: &frame}); err != nil {
				return
			}
		}
	}
}

func (s *Server) readChatFrames(ctx context.Context, conn *wsConn, conv *chatdomain.Conversation, log *zap.Logger) {
	raw := conn.conn
	raw.SetReadLimit(wsMaxReadSize)
	_ = raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Type != "send" {
			_ = conn.write(wsFrame{Type: "error", Error: "invalid_frame"})
			continue
		}

		// The inserted row comes back through the subscription.
		if _, err := s.chatSvc.Send(ctx, conv.ID, frame.Content, chatdomain.RoleUser); err != nil {
			_ = conn.write(wsFrame{Type: "error", Error: wsErrorCode(err)})
			if !isValidationError(err) {
				log.Warn("websocket send failed", zap.Error(err))
			}
		}
	}
}

func wsErrorCode(err error) string {
	switch {
	case errors.Is(err, chatdomain.ErrEmptyContent):
		return chatdomain.ErrEmptyContent.Error()
	case errors.Is(err, chatdomain.ErrContentTooLong):
		return chatdomain.ErrContentTooLong.Error()
	default:
		return "send_failed"
	}
}

