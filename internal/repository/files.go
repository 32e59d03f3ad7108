package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type FileRepo struct {
	coll *mongo.Collection
}

func NewFileRepo(coll *mongo.Collection) *FileRepo {
	return &FileRepo{coll: coll}
}

func (r *FileRepo) Insert(ctx context.Context, f *models.FileMetadata) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, f)
	return mapErr(err)
}

func (r *FileRepo) GetByID(ctx context.Context, id string) (*models.FileMetadata, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var f models.FileMetadata
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}

func (r *FileRepo) SetMessageID(ctx context.Context, id, messageID string, at time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"message_id": messageID, "updated_at": at}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *FileRepo) ListByMessage(ctx context.Context, messageID string) ([]models.FileMetadata, error) {
	return r.find(ctx, bson.M{"message_id": messageID})
}

func (r *FileRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.FileMetadata, error) {
	return r.find(ctx, bson.M{"conversation_id": conversationID})
}

func (r *FileRepo) find(ctx context.Context, filter bson.M) ([]models.FileMetadata, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.FileMetadata](ctx, cur)
}

func (r *FileRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}
