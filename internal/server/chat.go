package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	chatdomain "github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"go.uber.org/zap"
)

const autoReplyTimeout = 60 * time.Second

type createConversationRequest struct {
	Query string `json:"query"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// messageFrame is the wire shape of a chat message on every transport.
// Rows arrive from postgres with numeric ids and from this process with
// string ids, so both are read through json.Number.
type messageFrame struct {
	ID             json.Number     `json:"id"`
	ConversationID json.Number     `json:"conversation_id"`
	Content        string          `json:"content"`
	Role           chatdomain.Role `json:"role"`
	CreatedAt      string          `json:"created_at"`
}

func (f messageFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string          `json:"id"`
		ConversationID string          `json:"conversation_id"`
		Content        string          `json:"content"`
		Role           chatdomain.Role `json:"role"`
		CreatedAt      string          `json:"created_at"`
	}{f.ID.String(), f.ConversationID.String(), f.Content, f.Role, f.CreatedAt})
}

func frameFromMessage(msg *chatdomain.Message) messageFrame {
	return messageFrame{
		ID:             json.Number(msg.ID.String()),
		ConversationID: json.Number(msg.ConversationID.String()),
		Content:        msg.Content,
		Role:           msg.Role,
		CreatedAt:      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func frameFromChange(change realtime.Change) (messageFrame, bool) {
	if change.Type != realtime.ChangeInsert || len(change.Record) == 0 {
		return messageFrame{}, false
	}
	var frame messageFrame
	if err := json.Unmarshal(change.Record, &frame); err != nil || frame.ID == "" {
		return messageFrame{}, false
	}
	return frame, true
}

// frameForChange converts an insert into a frame. Oversized postgres
// notifications drop the content column, so those rows are reloaded.
func (s *Server) frameForChange(ctx context.Context, conversationID snowflake.ID, change realtime.Change) (messageFrame, bool) {
	frame, ok := frameFromChange(change)
	if !ok || frame.Content != "" {
		return frame, ok
	}
	messages, err := s.chatSvc.ListMessages(ctx, conversationID)
	if err != nil {
		s.log.Warn("reload trimmed message failed", zap.String("message_id", frame.ID.String()), zap.Error(err))
		return messageFrame{}, false
	}
	for _, msg := range messages {
		if msg.ID.String() == frame.ID.String() {
			return frameFromMessage(msg), true
		}
	}
	return messageFrame{}, false
}

func framesFromMessages(messages []*chatdomain.Message) []messageFrame {
	out := make([]messageFrame, 0, len(messages))
	for _, msg := range messages {
		out = append(out, frameFromMessage(msg))
	}
	return out
}

func (s *Server) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	conv, err := s.chatSvc.CreateConversation(c.Request.Context(), optionalUserID(c), req.Query)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) ListMessages(c *gin.Context) {
	conv, ok := s.loadConversation(c)
	if !ok {
		return
	}

	messages, err := s.chatSvc.ListMessages(c.Request.Context(), conv.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": framesFromMessages(messages)})
}

func (s *Server) PostMessage(c *gin.Context) {
	conv, ok := s.loadConversation(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	msg, err := s.chatSvc.Send(c.Request.Context(), conv.ID, req.Content, chatdomain.RoleUser)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, frameFromMessage(msg))
}

// StreamChat sends the history as one "history" event, then every new
// message as a "message" event. The subscription is opened before the
// history is read so nothing written in between is lost.
func (s *Server) StreamChat(c *gin.Context) {
	conv, ok := s.loadConversation(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	sub, err := s.chatSvc.Subscribe(ctx, conv.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer sub.Close()

	history, err := s.chatSvc.ListMessages(ctx, conv.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stream, ok := openEventStream(c)
	if !ok {
		return
	}
	if err := stream.send("history", gin.H{"messages": framesFromMessages(history)}); err != nil {
		return
	}

	s.autoReply(conv.ID)

	seen := make(map[string]struct{}, len(history))
	for _, msg := range history {
		seen[msg.ID.String()] = struct{}{}
	}
	pump(ctx, stream, sub.Events(), func(change realtime.Change) error {
		frame, ok := s.frameForChange(ctx, conv.ID, change)
		if !ok {
			return nil
		}
		if _, dup := seen[frame.ID.String()]; dup {
			return nil
		}
		seen[frame.ID.String()] = struct{}{}
		return stream.send("message", frame)
	})
}

// autoReply runs detached from the request so a client that disconnects
// does not cancel a reply other viewers are waiting for.
func (s *Server) autoReply(conversationID snowflake.ID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), autoReplyTimeout)
		defer cancel()
		if _, err := s.chatSvc.MaybeAutoReply(ctx, conversationID); err != nil {
			s.log.Warn("auto reply failed",
				zap.String("conversation_id", conversationID.String()),
				zap.Error(err),
			)
		}
	}()
}

// loadConversation resolves :conversationId and rejects callers that do
// not own it. Anonymous conversations are readable by anyone holding the id.
func (s *Server) loadConversation(c *gin.Context) (*chatdomain.Conversation, bool) {
	id, err := parseSnowflakeID(c.Param("conversationId"))
	if err != nil {
		AbortWithError(c, chatdomain.ErrInvalidConversation)
		return nil, false
	}

	conv, err := s.chatSvc.GetConversation(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}

	if conv.UserID != nil {
		userID, ok := currentUserID(c)
		if !ok || userID != *conv.UserID {
			AbortWithError(c, chatdomain.ErrForbidden)
			return nil, false
		}
	}
	return conv, true
}
