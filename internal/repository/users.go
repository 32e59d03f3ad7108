package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type UserRepo struct {
	coll *mongo.Collection
}

func NewUserRepo(coll *mongo.Collection) *UserRepo {
	return &UserRepo{coll: coll}
}

func (r *UserRepo) Insert(ctx context.Context, u *models.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, u)
	return mapErr(err)
}

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.User](ctx, cur)
}

func (r *UserRepo) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var u models.User
	if err := r.coll.FindOne(ctx, bson.M{"identity": identity}).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
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

type TokenRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewTokenRepo(coll *mongo.Collection) *TokenRepo {
	return &TokenRepo{coll: coll, now: time.Now}
}

// Upsert stores the (user, token) pair, refreshing the device type when the
// pair already exists. Reports whether a new record was created.
func (r *TokenRepo) Upsert(ctx context.Context, userID, token, deviceType string) (*models.FCMToken, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	now := r.now().UTC()
	filter := bson.M{"user_id": userID, "token": token}
	update := bson.M{
		"$set": bson.M{"device_type": deviceType, "updated_at": now},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out models.FCMToken
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return nil, false, mapErr(err)
	}
	created := out.CreatedAt.Equal(out.UpdatedAt)
	return &out, created, nil
}

func (r *TokenRepo) ListByUser(ctx context.Context, userID string) ([]models.FCMToken, error) {
	return r.ListByUsers(ctx, []string{userID})
}

func (r *TokenRepo) ListByUsers(ctx context.Context, userIDs []string) ([]models.FCMToken, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	cur, err := r.coll.Find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.FCMToken](ctx, cur)
}

type GroupRepo struct {
	coll *mongo.Collection
}

func NewGroupRepo(coll *mongo.Collection) *GroupRepo {
	return &GroupRepo{coll: coll}
}

// Upsert replaces the group document with g, creating it when missing.
func (r *GroupRepo) Upsert(ctx context.Context, g *models.Group) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": g.ID}, g, options.Replace().SetUpsert(true))
	return mapErr(err)
}

func (r *GroupRepo) GetByID(ctx context.Context, id string) (*models.Group, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var g models.Group
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return nil, mapErr(err)
	}
	return &g, nil
}

func (r *GroupRepo) AddMembers(ctx context.Context, id string, members []string, at time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$addToSet": bson.M{"members": bson.M{"$each": members}},
		"$set":      bson.M{"updated_at": at},
	})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}
