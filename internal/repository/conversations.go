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

type ConversationRepo struct {
	coll *mongo.Collection
}

func NewConversationRepo(coll *mongo.Collection) *ConversationRepo {
	return &ConversationRepo{coll: coll}
}

func (r *ConversationRepo) Insert(ctx context.Context, c *models.Conversation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, c)
	return mapErr(err)
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var c models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *ConversationRepo) FindByUniqueName(ctx context.Context, uniqueName string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var c models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"unique_name": uniqueName}).Decode(&c); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// List returns the most recently updated conversations, optionally only those
// identity participates in.
func (r *ConversationRepo) List(ctx context.Context, identity string, limit int64) ([]models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	filter := bson.M{}
	if identity != "" {
		filter["participants.identity"] = identity
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Conversation](ctx, cur)
}

// AddParticipant appends p unless a participant with the same identity or
// address is already present.
func (r *ConversationRepo) AddParticipant(ctx context.Context, id string, p models.Participant) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	filter := bson.M{"_id": id}
	if p.Identity != "" {
		filter["participants.identity"] = bson.M{"$ne": p.Identity}
	} else {
		filter["participants.address"] = bson.M{"$ne": p.Address}
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"participants": p},
		"$set":  bson.M{"updated_at": p.JoinedAt},
	})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		// either missing or already a participant
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return utils.ErrNotFound
		}
		return utils.ErrConflict
	}
	return nil
}

func (r *ConversationRepo) Touch(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"updated_at": at}})
	return mapErr(err)
}

func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
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
