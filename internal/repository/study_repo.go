package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const currentStudyID = "current"

// StudyRepo keeps the study file currently served to participants.
type StudyRepo interface {
	SaveCurrent(ctx context.Context, studyID string, raw []byte) error
	// GetCurrent returns the raw study file, or nil when none was saved.
	GetCurrent(ctx context.Context) ([]byte, error)
}

type studyDocument struct {
	ID        string    `bson:"_id"`
	StudyID   string    `bson:"studyId"`
	File      string    `bson:"file"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type studyRepo struct {
	collection *mongo.Collection
}

// NewStudyRepo creates a new study repository
func NewStudyRepo(db *mongo.Database) StudyRepo {
	return &studyRepo{
		collection: db.Collection("studies"),
	}
}

func (r *studyRepo) SaveCurrent(ctx context.Context, studyID string, raw []byte) error {
	doc := studyDocument{
		ID:        currentStudyID,
		StudyID:   studyID,
		File:      string(raw),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": currentStudyID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *studyRepo) GetCurrent(ctx context.Context) ([]byte, error) {
	var doc studyDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": currentStudyID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc.File), nil
}
