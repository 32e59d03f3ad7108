package gateway

import (
	"context"
	"sync"

	"github.com/fathima-sithara/chat-relay/internal/models"
)

// Broadcaster is the server-initiated fan-out surface of a gateway.
type Broadcaster interface {
	BroadcastMessageToRoom(ctx context.Context, roomID string, msg models.Message) int
	BroadcastConversationUpdate(ctx context.Context, roomID string, update any) int
	BroadcastUserStatus(ctx context.Context, userID string, status any) int
}

// Bridge is the registration slot collaborators hold to push broadcasts into
// the rooms without an inbound client event. Until a gateway is registered
// every call is a no-op; nothing is queued.
type Bridge struct {
	mu     sync.RWMutex
	target Broadcaster
}

func NewBridge() *Bridge {
	return &Bridge{}
}

func (b *Bridge) Register(target Broadcaster) {
	b.mu.Lock()
	b.target = target
	b.mu.Unlock()
}

func (b *Bridge) Unregister() {
	b.Register(nil)
}

func (b *Bridge) current() Broadcaster {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.target
}

// BroadcastMessageToRoom returns the number of connections reached on this node.
func (b *Bridge) BroadcastMessageToRoom(ctx context.Context, roomID string, msg models.Message) int {
	t := b.current()
	if t == nil {
		return 0
	}
	return t.BroadcastMessageToRoom(ctx, roomID, msg)
}

func (b *Bridge) BroadcastConversationUpdate(ctx context.Context, roomID string, update any) int {
	t := b.current()
	if t == nil {
		return 0
	}
	return t.BroadcastConversationUpdate(ctx, roomID, update)
}

func (b *Bridge) BroadcastUserStatus(ctx context.Context, userID string, status any) int {
	t := b.current()
	if t == nil {
		return 0
	}
	return t.BroadcastUserStatus(ctx, userID, status)
}
