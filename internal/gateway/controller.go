package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/metrics"
	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/presence"
	"github.com/fathima-sithara/chat-relay/internal/rooms"
)

const sideEffectTimeout = 3 * time.Second

// Controller owns the presence registry and the room index. Every mutation of
// either happens under mu, and both sides of a membership change are applied
// before mu is released. Collaborator calls happen outside mu.
type Controller struct {
	mu       sync.Mutex
	registry *presence.Registry
	rooms    *rooms.Index

	emitter   Emitter
	store     ConversationStore
	mirror    PresenceMirror
	relay     Relay
	publisher MessagePublisher

	nodeID string
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Controller)

func WithPresenceMirror(m PresenceMirror) Option { return func(c *Controller) { c.mirror = m } }

func WithRelay(r Relay) Option { return func(c *Controller) { c.relay = r } }

func WithMessagePublisher(p MessagePublisher) Option { return func(c *Controller) { c.publisher = p } }

func WithNodeID(id string) Option { return func(c *Controller) { c.nodeID = id } }

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
		c.registry.WithClock(now)
	}
}

func NewController(emitter Emitter, store ConversationStore, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		registry: presence.NewRegistry(),
		rooms:    rooms.NewIndex(),
		emitter:  emitter,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// joinLocked records the membership on both sides. Reports whether it is new.
func (c *Controller) joinLocked(u *presence.ConnectedUser, roomID string) bool {
	added := u.AddRoom(roomID)
	indexed := c.rooms.Join(roomID, u.UserID)
	return added || indexed
}

// leaveLocked drops the membership on both sides. Reports whether there was one.
func (c *Controller) leaveLocked(u *presence.ConnectedUser, roomID string) bool {
	removed := u.RemoveRoom(roomID)
	unindexed := c.rooms.Leave(roomID, u.UserID)
	return removed || unindexed
}

// evictLocked removes u from every room it joined, drops the transport
// subscriptions of its connection and tells the remaining members. A failed
// notification never stops the cleanup of later rooms.
func (c *Controller) evictLocked(u *presence.ConnectedUser) {
	for _, roomID := range u.Rooms() {
		c.emitter.Unsubscribe(u.ConnectionID, roomID)
		if !c.leaveLocked(u, roomID) {
			continue
		}
		c.broadcastLocked(roomID, EventUserLeft, MembershipNotice{
			ConversationID: roomID,
			Identity:       u.Identity,
			Timestamp:      c.now(),
		}, u.ConnectionID)
	}
}

// audienceLocked translates room members into their owning connections.
func (c *Controller) audienceLocked(roomID, exceptConn string) []string {
	members := c.rooms.MembersOf(roomID)
	conns := make([]string, 0, len(members))
	for _, userID := range members {
		u, ok := c.registry.Get(userID)
		if !ok || u.ConnectionID == exceptConn {
			continue
		}
		conns = append(conns, u.ConnectionID)
	}
	return conns
}

// broadcastLocked sends one event to the room members, skipping exceptConn
// when it is not empty. Returns the number of frames queued.
func (c *Controller) broadcastLocked(roomID, event string, payload any, exceptConn string) int {
	frame, err := Encode(event, payload)
	if err != nil {
		c.logger.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return 0
	}
	return c.fanoutLocked(roomID, event, frame, exceptConn)
}

func (c *Controller) fanoutLocked(roomID, event string, frame []byte, exceptConn string) int {
	sent := 0
	for _, connID := range c.audienceLocked(roomID, exceptConn) {
		if c.send(connID, event, frame) {
			sent++
		}
	}
	return sent
}

// emitLocked sends one event to a single connection.
func (c *Controller) emitLocked(connID, event string, payload any) bool {
	frame, err := Encode(event, payload)
	if err != nil {
		c.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.send(connID, event, frame)
}

func (c *Controller) send(connID, event string, frame []byte) bool {
	if err := c.emitter.Emit(connID, frame); err != nil {
		metrics.FramesDropped.Inc()
		c.logger.Debug("emit failed", zap.String("conn_id", connID), zap.String("event", event), zap.Error(err))
		return false
	}
	metrics.FramesSent.WithLabelValues(event).Inc()
	return true
}

func (c *Controller) gaugesLocked() {
	metrics.ConnectedUsers.Set(float64(c.registry.Count()))
	metrics.Rooms.Set(float64(c.rooms.Count()))
}

func (c *Controller) onlineUsersLocked(roomID string) []OnlineUser {
	members := c.rooms.MembersOf(roomID)
	out := make([]OnlineUser, 0, len(members))
	for _, userID := range members {
		u, ok := c.registry.Get(userID)
		if !ok {
			continue
		}
		out = append(out, OnlineUser{UserID: u.UserID, Identity: u.Identity, LastSeen: u.LastSeen})
	}
	return out
}

// DeliverToRoom fans a frame relayed from another node out to this node's
// members of roomID, the same audience a local broadcast reaches. The frame is
// never relayed again.
func (c *Controller) DeliverToRoom(roomID string, frame []byte) int {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Type == "" {
		c.logger.Warn("relayed frame without event", zap.String("room", roomID), zap.Error(err))
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fanoutLocked(roomID, env.Type, frame, "")
}

// side effects outside the lock

func (c *Controller) relayFrame(ctx context.Context, roomID string, frame []byte) {
	if c.relay == nil || frame == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := c.relay.Publish(ctx, roomID, frame); err != nil {
		c.logger.Warn("relay publish", zap.String("room", roomID), zap.Error(err))
	}
}

func (c *Controller) mirrorOnline(ctx context.Context, userID, identity, connID string) {
	if c.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := c.mirror.SetOnline(ctx, userID, identity, connID); err != nil {
		c.logger.Warn("presence mirror online", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *Controller) mirrorTouch(ctx context.Context, userID string) {
	if c.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := c.mirror.Touch(ctx, userID); err != nil {
		c.logger.Warn("presence mirror touch", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *Controller) mirrorOffline(ctx context.Context, userID string) {
	if c.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := c.mirror.SetOffline(ctx, userID); err != nil {
		c.logger.Warn("presence mirror offline", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *Controller) publishSent(ctx context.Context, msg models.Message) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	ev := models.MessageEvent{ConversationID: msg.ConversationID, Message: msg, Origin: c.nodeID, At: c.now()}
	if err := c.publisher.PublishMessageSent(ctx, ev); err != nil {
		c.logger.Warn("publish message sent", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// read accessors

func (c *Controller) ConnectedUsersCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Count()
}

// UsersInConversation returns the user ids joined to the room.
func (c *Controller) UsersInConversation(roomID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.MembersOf(roomID)
}

// OnlineUsers returns the connected members of the room.
func (c *Controller) OnlineUsers(roomID string) []OnlineUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onlineUsersLocked(roomID)
}

// OnlineUser reports whether userID holds a live connection on this node.
func (c *Controller) OnlineUser(userID string) (OnlineUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.registry.Get(userID)
	if !ok {
		return OnlineUser{}, false
	}
	return OnlineUser{UserID: u.UserID, Identity: u.Identity, LastSeen: u.LastSeen}, true
}

func (c *Controller) IsOnline(userID string) bool {
	_, ok := c.OnlineUser(userID)
	return ok
}
