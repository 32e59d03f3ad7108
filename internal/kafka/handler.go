package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

// MessageBroadcaster pushes a persisted message to a room's live members.
type MessageBroadcaster interface {
	BroadcastMessageToRoom(ctx context.Context, roomID string, msg models.Message) int
}

// MessageCreatedHandler feeds message.created records from other services
// into the realtime rooms.
type MessageCreatedHandler struct {
	broadcaster MessageBroadcaster
	nodeID      string
	logger      *zap.Logger
}

func NewMessageCreatedHandler(b MessageBroadcaster, nodeID string, logger *zap.Logger) *MessageCreatedHandler {
	return &MessageCreatedHandler{broadcaster: b, nodeID: nodeID, logger: logger}
}

func (h *MessageCreatedHandler) Handle(ctx context.Context, value []byte) error {
	var ev models.MessageEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: decode message event: %v", utils.ErrBadRequest, err)
	}
	if ev.ConversationID == "" {
		ev.ConversationID = ev.Message.ConversationID
	}
	if ev.ConversationID == "" || ev.Message.ID == "" {
		return fmt.Errorf("%w: message event without conversation or message id", utils.ErrBadRequest)
	}
	// this node already fanned out what it published itself
	if ev.Origin != "" && ev.Origin == h.nodeID {
		return nil
	}
	n := h.broadcaster.BroadcastMessageToRoom(ctx, ev.ConversationID, ev.Message)
	h.logger.Debug("message.created delivered",
		zap.String("conversation_id", ev.ConversationID), zap.String("message_id", ev.Message.ID), zap.Int("connections", n))
	return nil
}
