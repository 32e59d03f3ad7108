//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../mocks/mock_service.go -package=mocks

package service

import (
	"context"
	"time"

	"github.com/fathima-sithara/chat-relay/internal/models"
)

type ConversationRepository interface {
	Insert(ctx context.Context, c *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	FindByUniqueName(ctx context.Context, uniqueName string) (*models.Conversation, error)
	List(ctx context.Context, identity string, limit int64) ([]models.Conversation, error)
	AddParticipant(ctx context.Context, id string, p models.Participant) error
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) error
	List(ctx context.Context, conversationID string, limit int64) ([]models.Message, error)
	Last(ctx context.Context, conversationID string) (*models.Message, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
}

type UserRepository interface {
	Insert(ctx context.Context, u *models.User) error
	List(ctx context.Context) ([]models.User, error)
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	Delete(ctx context.Context, id string) error
}

type TokenRepository interface {
	Upsert(ctx context.Context, userID, token, deviceType string) (*models.FCMToken, bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.FCMToken, error)
	ListByUsers(ctx context.Context, userIDs []string) ([]models.FCMToken, error)
}

type GroupRepository interface {
	Upsert(ctx context.Context, g *models.Group) error
	GetByID(ctx context.Context, id string) (*models.Group, error)
	AddMembers(ctx context.Context, id string, members []string, at time.Time) error
}

type FileRepository interface {
	Insert(ctx context.Context, f *models.FileMetadata) error
	GetByID(ctx context.Context, id string) (*models.FileMetadata, error)
	SetMessageID(ctx context.Context, id, messageID string, at time.Time) error
	ListByMessage(ctx context.Context, messageID string) ([]models.FileMetadata, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.FileMetadata, error)
	Delete(ctx context.Context, id string) error
}

// BlobStore keeps uploaded bytes. Upload returns the public URL of the object,
// or "" when objects are only reachable through presigned URLs.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// MessageBroadcaster pushes stored messages to the live room members.
type MessageBroadcaster interface {
	BroadcastMessageToRoom(ctx context.Context, roomID string, msg models.Message) int
}

type ConversationEvents interface {
	PublishConversationCreated(ctx context.Context, conv models.Conversation) error
}

type TokenIssuer interface {
	Issue(identity string) (string, time.Time, error)
}
