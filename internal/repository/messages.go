package repository

import (
	"context"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-relay/internal/models"
)

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(coll *mongo.Collection) *MessageRepo {
	return &MessageRepo{coll: coll}
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.Message) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, m)
	return mapErr(err)
}

// List returns the newest limit messages of a conversation in chronological order.
func (r *MessageRepo) List(ctx context.Context, conversationID string, limit int64) ([]models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[models.Message](ctx, cur)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (r *MessageRepo) Last(ctx context.Context, conversationID string) (*models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *MessageRepo) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := r.coll.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
