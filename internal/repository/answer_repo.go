package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wellping/internal/model"
)

// AnswerRepo stores the latest answer per ping and question.
type AnswerRepo interface {
	// Upsert replaces any earlier answer to the same question in the same ping.
	Upsert(ctx context.Context, answer *model.Answer) error
	ListByPing(ctx context.Context, pingID string) ([]*model.Answer, error)
	ListByUsername(ctx context.Context, username string) ([]*model.Answer, error)
	EnsureIndexes(ctx context.Context) error
}

type answerRepo struct {
	collection *mongo.Collection
}

func NewAnswerRepo(db *mongo.Database) AnswerRepo {
	return &answerRepo{
		collection: db.Collection("answers"),
	}
}

func (r *answerRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pingId", Value: 1}, {Key: "questionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
		},
	})
	return err
}

func (r *answerRepo) Upsert(ctx context.Context, answer *model.Answer) error {
	filter := bson.M{"pingId": answer.PingID, "questionId": answer.QuestionID}
	_, err := r.collection.ReplaceOne(ctx, filter, answer, options.Replace().SetUpsert(true))
	return err
}

func (r *answerRepo) ListByPing(ctx context.Context, pingID string) ([]*model.Answer, error) {
	return r.find(ctx, bson.M{"pingId": pingID})
}

func (r *answerRepo) ListByUsername(ctx context.Context, username string) ([]*model.Answer, error) {
	return r.find(ctx, bson.M{"username": username})
}

func (r *answerRepo) find(ctx context.Context, filter bson.M) ([]*model.Answer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastUpdateDate", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var answers []*model.Answer
	if err = cursor.All(ctx, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}
