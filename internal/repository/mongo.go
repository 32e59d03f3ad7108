package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

const opTimeout = 3 * time.Second

func NewMongoClient(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Repositories bundles every collection the relay persists to.
type Repositories struct {
	Conversations *ConversationRepo
	Messages      *MessageRepo
	Users         *UserRepo
	Tokens        *TokenRepo
	Groups        *GroupRepo
	Files         *FileRepo
}

func New(db *mongo.Database) *Repositories {
	return &Repositories{
		Conversations: NewConversationRepo(db.Collection("conversations")),
		Messages:      NewMessageRepo(db.Collection("messages")),
		Users:         NewUserRepo(db.Collection("users")),
		Tokens:        NewTokenRepo(db.Collection("fcm_tokens")),
		Groups:        NewGroupRepo(db.Collection("groups")),
		Files:         NewFileRepo(db.Collection("files")),
	}
}

// EnsureIndexes creates the indexes every query relies on. Safe to run on each start.
func (r *Repositories) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{r.Conversations.coll, []mongo.IndexModel{
			{Keys: bson.D{{Key: "unique_name", Value: 1}}, Options: options.Index().SetName("unique_name_idx").SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "participants.identity", Value: 1}}, Options: options.Index().SetName("participant_identity_idx")},
		}},
		{r.Messages.coll, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("conversation_created_idx")},
		}},
		{r.Users.coll, []mongo.IndexModel{
			{Keys: bson.D{{Key: "identity", Value: 1}}, Options: options.Index().SetName("identity_idx").SetUnique(true)},
		}},
		{r.Tokens.coll, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "token", Value: 1}}, Options: options.Index().SetName("user_token_idx").SetUnique(true)},
		}},
		{r.Files.coll, []mongo.IndexModel{
			{Keys: bson.D{{Key: "message_id", Value: 1}}, Options: options.Index().SetName("message_idx")},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "uploaded_at", Value: -1}}, Options: options.Index().SetName("conversation_uploaded_idx")},
		}},
	}
	for _, s := range specs {
		if _, err := s.coll.Indexes().CreateMany(ctx, s.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", s.coll.Name(), err)
		}
	}
	return nil
}

// mapErr translates driver errors into the shared sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return utils.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", utils.ErrConflict, err)
	default:
		return err
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func decodeAll[T any](ctx context.Context, cur *mongo.Cursor) ([]T, error) {
	defer cur.Close(ctx)
	out := []T{}
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cur.Err()
}
