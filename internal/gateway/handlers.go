package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/models"
)

var errNoStore = errors.New("conversation store unavailable")

// Connect registers the caller as userID. The last connect for a user id wins;
// memberships held by a replaced record are dropped so the new connection
// starts outside every room.
func (c *Controller) Connect(ctx context.Context, connID string, p ConnectPayload) {
	c.mu.Lock()
	_, prev, displaced := c.registry.Register(p.UserID, p.Identity, connID)
	if prev != nil {
		c.evictLocked(prev)
	}
	if displaced != nil {
		c.evictLocked(displaced)
	}
	c.emitLocked(connID, EventUserConnected, UserConnected{
		Success:  true,
		Message:  "Connected to chat server",
		UserID:   p.UserID,
		Identity: p.Identity,
	})
	c.gaugesLocked()
	c.mu.Unlock()

	c.logger.Info("user connected", zap.String("user_id", p.UserID), zap.String("identity", p.Identity), zap.String("conn_id", connID))
	c.mirrorOnline(ctx, p.UserID, p.Identity, connID)
}

// JoinRoom subscribes the transport to the room and, for identified callers,
// records the membership, tells the other members, then sends the caller the
// member snapshot and the join acknowledgement.
func (c *Controller) JoinRoom(_ context.Context, connID string, p RoomPayload) {
	c.emitter.Subscribe(connID, p.ConversationID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if u, ok := c.registry.FindByConnectionID(connID); ok {
		if c.joinLocked(u, p.ConversationID) {
			c.broadcastLocked(p.ConversationID, EventUserJoined, MembershipNotice{
				ConversationID: p.ConversationID,
				Identity:       displayName(p.Identity, u.Identity),
				Timestamp:      c.now(),
			}, connID)
		}
		c.emitLocked(connID, EventConversationUsers, ConversationUsers{
			ConversationID: p.ConversationID,
			OnlineUsers:    c.onlineUsersLocked(p.ConversationID),
		})
		c.gaugesLocked()
	}
	c.emitLocked(connID, EventJoinedConversation, JoinedConversation{
		Success:        true,
		ConversationID: p.ConversationID,
		Message:        fmt.Sprintf("Joined conversation %s", p.ConversationID),
	})
}

// LeaveRoom unsubscribes the transport and drops the caller's membership.
// Nothing is sent back to the caller.
func (c *Controller) LeaveRoom(_ context.Context, connID string, p RoomPayload) {
	c.emitter.Unsubscribe(connID, p.ConversationID)

	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.registry.FindByConnectionID(connID)
	if !ok || !c.leaveLocked(u, p.ConversationID) {
		return
	}
	c.broadcastLocked(p.ConversationID, EventUserLeft, MembershipNotice{
		ConversationID: p.ConversationID,
		Identity:       displayName(p.Identity, u.Identity),
		Timestamp:      c.now(),
	}, connID)
	c.gaugesLocked()
}

// SendMessage persists the message and fans it out to the whole room,
// sender included. The audience is read once the store call has returned.
func (c *Controller) SendMessage(ctx context.Context, connID string, p SendMessagePayload) {
	msg, err := c.createMessage(ctx, p)
	if err != nil {
		c.logger.Warn("send message failed",
			zap.String("conn_id", connID), zap.String("room", p.ConversationID), zap.Error(err))
		c.mu.Lock()
		c.emitLocked(connID, EventMessageError, MessageError{
			Success:        false,
			Error:          err.Error(),
			ConversationID: p.ConversationID,
		})
		c.mu.Unlock()
		return
	}

	frame, err := Encode(EventNewMessage, NewMessage{
		ConversationID: p.ConversationID,
		Message:        chatMessageFrom(*msg),
		Timestamp:      c.now(),
	})
	if err != nil {
		c.logger.Error("encode new message", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.fanoutLocked(p.ConversationID, EventNewMessage, frame, "")
	c.emitLocked(connID, EventMessageSent, MessageSent{
		Success:        true,
		MessageID:      msg.ID,
		ConversationID: p.ConversationID,
	})
	c.mu.Unlock()

	c.relayFrame(ctx, p.ConversationID, frame)
	c.publishSent(ctx, *msg)
}

func (c *Controller) createMessage(ctx context.Context, p SendMessagePayload) (*models.Message, error) {
	if c.store == nil {
		return nil, errNoStore
	}
	msg, err := c.store.CreateMessage(ctx, p.ConversationID, p.Body, p.Author, p.Media)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errNoStore
	}
	if msg.ConversationID == "" {
		msg.ConversationID = p.ConversationID
	}
	return msg, nil
}

// Typing tells the other room members that the caller started or stopped typing.
func (c *Controller) Typing(_ context.Context, connID string, p RoomPayload, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	identity := p.Identity
	if u, ok := c.registry.FindByConnectionID(connID); ok {
		identity = displayName(p.Identity, u.Identity)
	}
	c.broadcastLocked(p.ConversationID, EventUserTyping, UserTyping{
		ConversationID: p.ConversationID,
		Identity:       identity,
		IsTyping:       isTyping,
		Timestamp:      c.now(),
	}, connID)
}

// GetOnlineUsers replies with the connected members of the room.
func (c *Controller) GetOnlineUsers(_ context.Context, connID string, p OnlineUsersPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.emitLocked(connID, EventOnlineUsers, OnlineUsers{
		ConversationID: p.ConversationID,
		Users:          c.onlineUsersLocked(p.ConversationID),
	})
}

func (c *Controller) Ping(ctx context.Context, connID string) {
	c.mu.Lock()
	u, ok := c.registry.FindByConnectionID(connID)
	var userID string
	if ok {
		c.registry.Touch(u.UserID)
		userID = u.UserID
	}
	c.emitLocked(connID, EventPong, Pong{Timestamp: c.now()})
	c.mu.Unlock()

	if userID != "" {
		c.mirrorTouch(ctx, userID)
	}
}

// Disconnect removes the caller from every room, notifying each, and deletes
// its record. Unknown connections are ignored.
func (c *Controller) Disconnect(ctx context.Context, connID string) {
	c.mu.Lock()
	u, ok := c.registry.FindByConnectionID(connID)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.evictLocked(u)
	c.registry.Remove(u.UserID)
	c.gaugesLocked()
	c.mu.Unlock()

	c.logger.Info("user disconnected", zap.String("user_id", u.UserID), zap.String("conn_id", connID))
	c.mirrorOffline(ctx, u.UserID)
}

// BroadcastMessageToRoom pushes a message persisted elsewhere to the same
// audience SendMessage reaches.
func (c *Controller) BroadcastMessageToRoom(ctx context.Context, roomID string, msg models.Message) int {
	frame, err := Encode(EventNewMessage, NewMessage{
		ConversationID: roomID,
		Message:        chatMessageFrom(msg),
		Timestamp:      c.now(),
	})
	if err != nil {
		c.logger.Error("encode new message", zap.Error(err))
		return 0
	}
	c.mu.Lock()
	n := c.fanoutLocked(roomID, EventNewMessage, frame, "")
	c.mu.Unlock()

	c.relayFrame(ctx, roomID, frame)
	return n
}

func (c *Controller) BroadcastConversationUpdate(ctx context.Context, roomID string, update any) int {
	frame, err := Encode(EventConversationUpdated, ConversationUpdated{
		ConversationID: roomID,
		Update:         update,
		Timestamp:      c.now(),
	})
	if err != nil {
		c.logger.Error("encode conversation update", zap.Error(err))
		return 0
	}
	c.mu.Lock()
	n := c.fanoutLocked(roomID, EventConversationUpdated, frame, "")
	c.mu.Unlock()

	c.relayFrame(ctx, roomID, frame)
	return n
}

// BroadcastUserStatus sends the status to every room userID has joined.
func (c *Controller) BroadcastUserStatus(ctx context.Context, userID string, status any) int {
	type out struct {
		room  string
		frame []byte
	}
	var frames []out
	n := 0

	c.mu.Lock()
	if u, ok := c.registry.Get(userID); ok {
		for _, roomID := range u.Rooms() {
			frame, err := Encode(EventUserStatusChanged, UserStatusChanged{
				ConversationID: roomID,
				UserID:         userID,
				Identity:       u.Identity,
				Status:         status,
				Timestamp:      c.now(),
			})
			if err != nil {
				c.logger.Error("encode user status", zap.Error(err))
				continue
			}
			n += c.fanoutLocked(roomID, EventUserStatusChanged, frame, "")
			frames = append(frames, out{room: roomID, frame: frame})
		}
	}
	c.mu.Unlock()

	for _, f := range frames {
		c.relayFrame(ctx, f.room, f.frame)
	}
	return n
}

func displayName(sent, registered string) string {
	if sent != "" {
		return sent
	}
	return registered
}
