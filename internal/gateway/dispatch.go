package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/utils"
)

// Dispatch decodes and validates one inbound frame and routes it to its
// handler. Malformed frames are answered with an error event to the caller only.
func (c *Controller) Dispatch(ctx context.Context, in Inbound) {
	switch in.Type {
	case EventConnect, EventUserConnect:
		var p ConnectPayload
		if !c.decode(in, &p) {
			return
		}
		if in.Subject != "" && p.UserID != in.Subject {
			c.reject(in, fmt.Errorf("%w: userId does not match the authenticated subject", utils.ErrUnauthorized))
			return
		}
		c.Connect(ctx, in.ConnID, p)

	case EventJoinConversation:
		var p RoomPayload
		if c.decode(in, &p) {
			c.JoinRoom(ctx, in.ConnID, p)
		}

	case EventLeaveConversation:
		var p RoomPayload
		if c.decode(in, &p) {
			c.LeaveRoom(ctx, in.ConnID, p)
		}

	case EventSendMessage:
		var p SendMessagePayload
		if c.decode(in, &p) {
			// an in-flight send outlives the connection that issued it
			c.SendMessage(context.WithoutCancel(ctx), in.ConnID, p)
		}

	case EventTypingStart, EventTypingStop:
		var p RoomPayload
		if c.decode(in, &p) {
			c.Typing(ctx, in.ConnID, p, in.Type == EventTypingStart)
		}

	case EventGetOnlineUsers:
		var p OnlineUsersPayload
		if c.decode(in, &p) {
			c.GetOnlineUsers(ctx, in.ConnID, p)
		}

	case EventPing:
		c.Ping(ctx, in.ConnID)

	default:
		c.reject(in, fmt.Errorf("%w: unknown event %q", utils.ErrBadRequest, in.Type))
	}
}

func (c *Controller) decode(in Inbound, dst any) bool {
	payload := in.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		c.reject(in, fmt.Errorf("%w: malformed payload: %v", utils.ErrBadRequest, err))
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		c.reject(in, err)
		return false
	}
	return true
}

func (c *Controller) reject(in Inbound, err error) {
	c.logger.Debug("inbound rejected", zap.String("conn_id", in.ConnID), zap.String("event", in.Type), zap.Error(err))
	msg := err.Error()
	fields := utils.FormatValidationErrors(err)
	if len(fields) > 0 {
		msg = "validation failed"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(in.ConnID, EventError, ErrorEvent{Event: in.Type, Error: msg, Fields: fields})
}
