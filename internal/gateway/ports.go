//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../mocks/mock_gateway.go -package=mocks

package gateway

import (
	"context"

	"github.com/fathima-sithara/chat-relay/internal/models"
)

// ConversationStore persists messages sent over the socket.
type ConversationStore interface {
	CreateMessage(ctx context.Context, conversationID, body, author string, media []string) (*models.Message, error)
}

// Emitter is the transport side of the connection sessions.
type Emitter interface {
	// Emit queues one frame for a connection. It must not block.
	Emit(connID string, frame []byte) error
	Subscribe(connID, roomID string)
	Unsubscribe(connID, roomID string)
}

// PresenceMirror publishes online state outside this process.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID, identity, connID string) error
	Touch(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// Relay forwards whole-room frames to the other relay instances.
type Relay interface {
	Publish(ctx context.Context, roomID string, frame []byte) error
}

// MessagePublisher announces messages sent through the socket to downstream consumers.
type MessagePublisher interface {
	PublishMessageSent(ctx context.Context, ev models.MessageEvent) error
}
