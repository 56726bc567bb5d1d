package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wellping/internal/apperror"
	"wellping/internal/model"
)

// PingRepo handles MongoDB operations for pings
type PingRepo interface {
	Insert(ctx context.Context, ping *model.Ping) error
	GetByID(ctx context.Context, id string) (*model.Ping, error)
	// RecordEndTime marks the ping completed and returns the updated record.
	RecordEndTime(ctx context.Context, pingID string, endTime time.Time) (*model.Ping, error)
	ListByUsername(ctx context.Context, username string) ([]*model.Ping, error)
	// ListSince returns the pings started at or after since, oldest first.
	ListSince(ctx context.Context, username string, since time.Time) ([]*model.Ping, error)
	Latest(ctx context.Context, username string) (*model.Ping, error)
	EnsureIndexes(ctx context.Context) error
}

type pingRepo struct {
	collection *mongo.Collection
}

// NewPingRepo creates a new ping repository
func NewPingRepo(db *mongo.Database) PingRepo {
	return &pingRepo{
		collection: db.Collection("pings"),
	}
}

func (r *pingRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "username", Value: 1}, {Key: "startTime", Value: 1}},
	})
	return err
}

func (r *pingRepo) Insert(ctx context.Context, ping *model.Ping) error {
	_, err := r.collection.InsertOne(ctx, ping)
	return err
}

func (r *pingRepo) GetByID(ctx context.Context, id string) (*model.Ping, error) {
	var ping model.Ping
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ping)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ping, nil
}

func (r *pingRepo) RecordEndTime(ctx context.Context, pingID string, endTime time.Time) (*model.Ping, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var ping model.Ping
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": pingID},
		bson.M{"$set": bson.M{"endTime": endTime}},
		opts,
	).Decode(&ping)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NewNotFoundError("ping")
	}
	if err != nil {
		return nil, err
	}
	return &ping, nil
}

func (r *pingRepo) ListByUsername(ctx context.Context, username string) ([]*model.Ping, error) {
	return r.find(ctx, bson.M{"username": username})
}

func (r *pingRepo) ListSince(ctx context.Context, username string, since time.Time) ([]*model.Ping, error) {
	return r.find(ctx, bson.M{"username": username, "startTime": bson.M{"$gte": since}})
}

func (r *pingRepo) Latest(ctx context.Context, username string) (*model.Ping, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "startTime", Value: -1}})
	var ping model.Ping
	err := r.collection.FindOne(ctx, bson.M{"username": username}, opts).Decode(&ping)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ping, nil
}

func (r *pingRepo) find(ctx context.Context, filter bson.M) ([]*model.Ping, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pings []*model.Ping
	if err := cursor.All(ctx, &pings); err != nil {
		return nil, err
	}
	return pings, nil
}
