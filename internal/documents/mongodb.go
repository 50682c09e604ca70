package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDocument struct {
	Name      string    `bson:"_id"`
	Content   []byte    `bson:"content"`
	Backup    []byte    `bson:"backup,omitempty"`
	HasBackup bool      `bson:"has_backup"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps every document, and its backup, in one collection keyed by
// document name.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{collection: db.Collection(collection)}
}

func (s *MongoStore) find(ctx context.Context, name string) (*mongoDocument, error) {
	var doc mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", name, err)
	}
	return &doc, nil
}

func (s *MongoStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	doc, err := s.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return doc.Content, nil
}

func (s *MongoStore) Write(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	current, err := s.find(ctx, name)
	if err != nil {
		return err
	}

	set := bson.M{
		"content":    data,
		"has_backup": current != nil,
		"updated_at": time.Now().UTC(),
	}
	if current != nil {
		set["backup"] = current.Content
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	return nil
}

func (s *MongoStore) Restore(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	doc, err := s.find(ctx, name)
	if err != nil {
		return err
	}
	if doc == nil || !doc.HasBackup {
		return fmt.Errorf("%w: %s", ErrNoBackup, name)
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"content": doc.Backup, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to restore document %s: %w", name, err)
	}
	return nil
}

func (s *MongoStore) HasBackup(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}

	doc, err := s.find(ctx, name)
	if err != nil {
		return false, err
	}
	return doc != nil && doc.HasBackup, nil
}
